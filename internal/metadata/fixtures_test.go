package metadata

func leaf(typ string, path ...string) Field {
	return Field{Path: path, Kind: FieldLeaf, Type: typ}
}

func group(path ...string) Field {
	return Field{Path: path, Kind: FieldGroup}
}

func repeat(path ...string) Field {
	return Field{Path: path, Kind: FieldRepeat}
}

func doubleRepeatForm() *Form {
	return &Form{
		ID:      "doubleRepeat",
		Version: "1.0",
		Fields: []Field{
			group("meta"),
			leaf("string", "meta", "instanceID"),
			leaf("string", "name"),
			group("children"),
			repeat("children", "child"),
			leaf("string", "children", "child", "name"),
			group("children", "child", "toys"),
			repeat("children", "child", "toys", "toy"),
			leaf("string", "children", "child", "toys", "toy", "name"),
		},
	}
}
