package metadata

// ServiceDocumentEntry is one entity set listed in the service document.
type ServiceDocumentEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// ServiceDocument is the JSON service document of a form feed.
type ServiceDocument struct {
	Context string                 `json:"@odata.context"`
	Value   []ServiceDocumentEntry `json:"value"`
}

// BuildServiceDocument lists every entity set of schema in schema order.
// serviceRoot is the absolute URL of the service, without a trailing slash.
func BuildServiceDocument(schema *Schema, serviceRoot string) ServiceDocument {
	entries := make([]ServiceDocumentEntry, 0, len(schema.Entities))
	for _, entity := range schema.Entities {
		entries = append(entries, ServiceDocumentEntry{
			Name: entity.EntitySetName,
			Kind: "EntitySet",
			URL:  entity.EntitySetName,
		})
	}
	return ServiceDocument{
		Context: serviceRoot + "/$metadata",
		Value:   entries,
	}
}
