package flatten

import (
	"strconv"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

// NavigationLinkSuffix is appended to a repeat name to form the key of its
// navigation link.
const NavigationLinkSuffix = "@odata.navigationLink"

// Selector decides which property paths appear in a shaped row.
type Selector interface {
	// Includes reports whether path, or one of its ancestors, is selected.
	Includes(path ...string) bool
	// IncludesWithin reports whether some selected path lies strictly below path.
	IncludesWithin(path ...string) bool
}

// LinkFunc returns the relative URL of the child rows of row in child.
type LinkFunc func(row Row, child *metadata.EntityMetadata) string

// ShapeOptions controls Shape.
type ShapeOptions struct {
	Select Selector // nil selects everything
	WKT    bool     // render geo values as WKT strings instead of GeoJSON
	Link   LinkFunc
}

type selectAll struct{}

func (selectAll) Includes(...string) bool       { return true }
func (selectAll) IncludesWithin(...string) bool { return true }

// Shape projects row into its JSON object: __id first, then __system on root
// rows or the parent key on child rows, then the row's data in schema order
// with groups re-nested.
func Shape(row Row, opts ShapeOptions) *Object {
	sel := opts.Select
	if sel == nil {
		sel = selectAll{}
	}

	obj := NewObject()
	entity := row.Entity
	if sel.Includes(metadata.IDPropertyName) {
		obj.Set(metadata.IDPropertyName, row.ID)
	}
	if entity.IsRoot() {
		full := sel.Includes(metadata.SystemPropertyName)
		if full || sel.IncludesWithin(metadata.SystemPropertyName) {
			obj.Set(metadata.SystemPropertyName, systemObject(&row.Submission.System, sel, full))
		}
	} else if sel.Includes(entity.ParentKeyName) {
		obj.Set(entity.ParentKeyName, row.ParentID)
	}

	if row.Submission.Content == submission.ContentRootOnly {
		return obj
	}

	s := shaper{row: row, opts: opts, sel: sel}
	s.properties(obj, entity.Properties, row.Data, nil)
	return obj
}

type shaper struct {
	row  Row
	opts ShapeOptions
	sel  Selector
}

func (s *shaper) properties(obj *Object, props []*metadata.PropertyMetadata, data map[string]any, path []string) {
	for _, prop := range props {
		propPath := append(append([]string(nil), path...), prop.Name)
		full := s.sel.Includes(propPath...)
		if !full && !s.sel.IncludesWithin(propPath...) {
			continue
		}

		switch {
		case prop.IsNavigationProp:
			if !full || !HasChildRows(s.row, prop.NavigationTarget) {
				continue
			}
			if s.opts.Link != nil {
				obj.Set(prop.Name+NavigationLinkSuffix, s.opts.Link(s.row, prop.NavigationTarget))
			}
		case prop.IsComplexType:
			raw, present := data[prop.OriginalName]
			groupData, _ := raw.(map[string]any)
			group := NewObject()
			s.properties(group, prop.ComplexTypeFields, groupData, propPath)
			if s.emitGroup(prop, group, present) {
				obj.Set(prop.Name, group)
			}
		default:
			raw, present := data[prop.OriginalName]
			if !present {
				continue
			}
			obj.Set(prop.Name, Coerce(raw, prop.FormType, s.opts.WKT))
		}
	}
}

// emitGroup decides whether a shaped group appears in the row. Groups that
// lead to repeats are kept as empty objects on rows whose repeats are
// available, so clients can tell "no child rows" from "no such field".
func (s *shaper) emitGroup(prop *metadata.PropertyMetadata, group *Object, present bool) bool {
	if group.Len() > 0 {
		return true
	}
	if s.row.Submission.Content.HasRepeats() && leadsToRepeat(prop) {
		return true
	}
	return present && !onlyRepeats(prop)
}

func leadsToRepeat(prop *metadata.PropertyMetadata) bool {
	for _, field := range prop.ComplexTypeFields {
		if field.IsNavigationProp || (field.IsComplexType && leadsToRepeat(field)) {
			return true
		}
	}
	return false
}

func onlyRepeats(prop *metadata.PropertyMetadata) bool {
	for _, field := range prop.ComplexTypeFields {
		if field.IsNavigationProp {
			continue
		}
		if !field.IsComplexType || !onlyRepeats(field) {
			return false
		}
	}
	return true
}

func systemObject(sys *submission.System, sel Selector, all bool) *Object {
	obj := NewObject()
	for _, prop := range metadata.SystemProperties {
		if !all && !sel.Includes(metadata.SystemPropertyName, prop.Name) {
			continue
		}
		obj.Set(prop.Name, systemValue(sys, prop.Name))
	}
	return obj
}

func systemValue(sys *submission.System, name string) any {
	switch name {
	case "submissionDate":
		return FormatTimestamp(sys.SubmissionDate)
	case "updatedAt":
		if sys.UpdatedAt == nil {
			return nil
		}
		return FormatTimestamp(*sys.UpdatedAt)
	case "submitterId":
		return strconv.FormatInt(sys.SubmitterID, 10)
	case "submitterName":
		return sys.SubmitterName
	case "attachmentsPresent":
		return sys.AttachmentsPresent
	case "attachmentsExpected":
		return sys.AttachmentsExpected
	case "status":
		return sys.Status
	case "reviewState":
		return sys.ReviewState
	case "deviceId":
		return sys.DeviceID
	case "edits":
		return sys.Edits
	case "formVersion":
		return sys.FormVersion
	}
	return nil
}
