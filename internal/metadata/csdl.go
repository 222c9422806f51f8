package metadata

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	edmxNamespace = "http://docs.oasis-open.org/odata/ns/edmx"
	edmNamespace  = "http://docs.oasis-open.org/odata/ns/edm"

	coreVocabularyURI         = "http://docs.oasis-open.org/odata/odata/v4.0/os/vocabularies/Org.OData.Core.V1.xml"
	capabilitiesVocabularyURI = "http://docs.oasis-open.org/odata/odata/v4.0/os/vocabularies/Org.OData.Capabilities.V1.xml"

	termDescription     = "Org.OData.Core.V1.Description"
	termConformance     = "Org.OData.Capabilities.V1.ConformanceLevel"
	termBatchSupported  = "Org.OData.Capabilities.V1.BatchSupported"
	termFilterFunctions = "Org.OData.Capabilities.V1.FilterFunctions"
	termTopSupported    = "Org.OData.Capabilities.V1.TopSupported"
	termSkipSupported   = "Org.OData.Capabilities.V1.SkipSupported"
)

// FilterFunctions lists the $filter functions advertised in the metadata document.
var FilterFunctions = []string{"year", "month", "day", "hour", "minute", "second"}

type edmxDocument struct {
	XMLName      xml.Name         `xml:"edmx:Edmx"`
	XmlnsEdmx    string           `xml:"xmlns:edmx,attr"`
	Version      string           `xml:"Version,attr"`
	References   []edmxReference  `xml:"edmx:Reference"`
	DataServices edmxDataServices `xml:"edmx:DataServices"`
}

type edmxReference struct {
	URI      string        `xml:"Uri,attr"`
	Includes []edmxInclude `xml:"edmx:Include"`
}

type edmxInclude struct {
	Namespace string `xml:"Namespace,attr"`
	Alias     string `xml:"Alias,attr"`
}

type edmxDataServices struct {
	Schemas []csdlSchema `xml:"Schema"`
}

type csdlSchema struct {
	Xmlns           string               `xml:"xmlns,attr"`
	Namespace       string               `xml:"Namespace,attr"`
	EntityTypes     []csdlEntityType     `xml:"EntityType"`
	ComplexTypes    []csdlComplexType    `xml:"ComplexType"`
	EntityContainer *csdlEntityContainer `xml:"EntityContainer,omitempty"`
}

type csdlEntityType struct {
	Name                 string                   `xml:"Name,attr"`
	Key                  csdlKey                  `xml:"Key"`
	Properties           []csdlProperty           `xml:"Property"`
	NavigationProperties []csdlNavigationProperty `xml:"NavigationProperty"`
}

type csdlKey struct {
	PropertyRefs []csdlPropertyRef `xml:"PropertyRef"`
}

type csdlPropertyRef struct {
	Name string `xml:"Name,attr"`
}

type csdlComplexType struct {
	Name                 string                   `xml:"Name,attr"`
	Properties           []csdlProperty           `xml:"Property"`
	NavigationProperties []csdlNavigationProperty `xml:"NavigationProperty"`
}

type csdlProperty struct {
	Name        string           `xml:"Name,attr"`
	Type        string           `xml:"Type,attr"`
	Annotations []csdlAnnotation `xml:"Annotation"`
}

type csdlNavigationProperty struct {
	Name string `xml:"Name,attr"`
	Type string `xml:"Type,attr"`
}

type csdlAnnotation struct {
	Term       string          `xml:"Term,attr"`
	String     string          `xml:"String,attr,omitempty"`
	Bool       string          `xml:"Bool,attr,omitempty"`
	EnumMember string          `xml:"EnumMember,attr,omitempty"`
	Collection *csdlCollection `xml:"Collection,omitempty"`
}

type csdlCollection struct {
	Strings []string `xml:"String"`
}

type csdlEntityContainer struct {
	Name       string          `xml:"Name,attr"`
	EntitySets []csdlEntitySet `xml:"EntitySet"`
}

type csdlEntitySet struct {
	Name                       string                          `xml:"Name,attr"`
	EntityType                 string                          `xml:"EntityType,attr"`
	NavigationPropertyBindings []csdlNavigationPropertyBinding `xml:"NavigationPropertyBinding"`
	Annotations                []csdlAnnotation                `xml:"Annotation"`
}

type csdlNavigationPropertyBinding struct {
	Path   string `xml:"Path,attr"`
	Target string `xml:"Target,attr"`
}

// BuildCSDL renders the EDMX metadata document for schema. The output depends
// only on the schema, so repeated calls produce identical bytes.
func BuildCSDL(schema *Schema) ([]byte, error) {
	doc := edmxDocument{
		XmlnsEdmx: edmxNamespace,
		Version:   "4.0",
		References: []edmxReference{
			{URI: coreVocabularyURI, Includes: []edmxInclude{{Namespace: "Org.OData.Core.V1", Alias: "Core"}}},
			{URI: capabilitiesVocabularyURI, Includes: []edmxInclude{{Namespace: "Org.OData.Capabilities.V1", Alias: "Capabilities"}}},
		},
		DataServices: edmxDataServices{
			Schemas: []csdlSchema{systemSchema(), userSchema(schema)},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode metadata document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode metadata document: %w", err)
	}
	return buf.Bytes(), nil
}

func systemSchema() csdlSchema {
	props := make([]csdlProperty, 0, len(SystemProperties))
	for _, p := range SystemProperties {
		props = append(props, csdlProperty{Name: p.Name, Type: p.EdmType})
	}
	return csdlSchema{
		Xmlns:        edmNamespace,
		Namespace:    SystemNamespace,
		ComplexTypes: []csdlComplexType{{Name: SystemTypeName, Properties: props}},
	}
}

func userSchema(schema *Schema) csdlSchema {
	out := csdlSchema{
		Xmlns:     edmNamespace,
		Namespace: schema.Namespace,
	}
	container := &csdlEntityContainer{Name: SanitizeName(schema.Form.ID)}

	for _, entity := range schema.Entities {
		entityType := csdlEntityType{
			Name: entity.EntitySetName,
			Key:  csdlKey{PropertyRefs: []csdlPropertyRef{{Name: IDPropertyName}}},
		}
		entityType.Properties = append(entityType.Properties, csdlProperty{Name: IDPropertyName, Type: "Edm.String"})
		if entity.IsRoot() {
			entityType.Properties = append(entityType.Properties, csdlProperty{
				Name: SystemPropertyName,
				Type: SystemNamespace + "." + SystemTypeName,
			})
		} else {
			entityType.Properties = append(entityType.Properties, csdlProperty{Name: entity.ParentKeyName, Type: "Edm.String"})
		}

		props, navs := renderProperties(schema, entity.Properties, &out.ComplexTypes)
		entityType.Properties = append(entityType.Properties, props...)
		entityType.NavigationProperties = navs
		out.EntityTypes = append(out.EntityTypes, entityType)

		set := csdlEntitySet{
			Name:        entity.EntitySetName,
			EntityType:  schema.QualifiedName(entity.EntitySetName),
			Annotations: entitySetCapabilities(),
		}
		for _, child := range entity.Children {
			set.NavigationPropertyBindings = append(set.NavigationPropertyBindings, csdlNavigationPropertyBinding{
				Path:   strings.Join(child.NavigationPath, "/"),
				Target: child.EntitySetName,
			})
		}
		container.EntitySets = append(container.EntitySets, set)
	}

	out.EntityContainer = container
	return out
}

// renderProperties converts a property list into CSDL properties and
// navigation properties, appending every group complex type it meets.
func renderProperties(schema *Schema, props []*PropertyMetadata, complexTypes *[]csdlComplexType) ([]csdlProperty, []csdlNavigationProperty) {
	var (
		structural []csdlProperty
		navigation []csdlNavigationProperty
	)
	for _, prop := range props {
		switch {
		case prop.IsNavigationProp:
			navigation = append(navigation, csdlNavigationProperty{
				Name: prop.Name,
				Type: "Collection(" + schema.QualifiedName(prop.NavigationTarget.EntitySetName) + ")",
			})
		case prop.IsComplexType:
			structural = append(structural, csdlProperty{
				Name:        prop.Name,
				Type:        schema.QualifiedName(prop.ComplexTypeName),
				Annotations: describeOriginal(prop),
			})
			// reserve the slot so parents precede nested groups
			idx := len(*complexTypes)
			*complexTypes = append(*complexTypes, csdlComplexType{Name: prop.ComplexTypeName})
			fields, navs := renderProperties(schema, prop.ComplexTypeFields, complexTypes)
			(*complexTypes)[idx].Properties = fields
			(*complexTypes)[idx].NavigationProperties = navs
		default:
			structural = append(structural, csdlProperty{
				Name:        prop.Name,
				Type:        prop.EdmType,
				Annotations: describeOriginal(prop),
			})
		}
	}
	return structural, navigation
}

func describeOriginal(prop *PropertyMetadata) []csdlAnnotation {
	if prop.Name == prop.OriginalName {
		return nil
	}
	return []csdlAnnotation{{Term: termDescription, String: prop.OriginalName}}
}

func entitySetCapabilities() []csdlAnnotation {
	return []csdlAnnotation{
		{Term: termConformance, EnumMember: "Org.OData.Capabilities.V1.ConformanceLevelType/Minimal"},
		{Term: termBatchSupported, Bool: "false"},
		{Term: termFilterFunctions, Collection: &csdlCollection{Strings: FilterFunctions}},
		{Term: termTopSupported, Bool: "true"},
		{Term: termSkipSupported, Bool: "true"},
	}
}
