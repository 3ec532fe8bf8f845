package schema

import (
	"fmt"

	"github.com/reoring/bimgraph/jsonschema"
)

// JSONSchema projects the raw attribute map accepted for typeName into a JSON
// Schema document. References are described in their serialized form: either a
// {"$ref": token} object or an expanded entity node.
func (d *Definition) JSONSchema(typeName string) (*jsonschema.Schema, error) {
	ti, ok := d.types[typeName]
	if !ok {
		return nil, fmt.Errorf("schema: unknown type %q", typeName)
	}
	s := &jsonschema.Schema{
		Schema:               jsonschema.Draft,
		Title:                typeName,
		Type:                 "object",
		Properties:           make(map[string]*jsonschema.Schema),
		AdditionalProperties: false,
	}
	if ti.decl.Abstract {
		s.Description = "abstract type " + typeName
	}
	for _, a := range ti.all {
		if a.IsInverse() {
			continue
		}
		p := attrSchema(a.Type)
		if a.Optional {
			p = jsonschema.Nullable(p)
		} else {
			s.Required = append(s.Required, a.Name)
		}
		s.Properties[a.Name] = p
	}
	return s, nil
}

func attrSchema(t AttrType) *jsonschema.Schema {
	elem := kindSchema(t)
	if !t.List {
		return elem
	}
	return &jsonschema.Schema{Type: "array", Items: elem}
}

func kindSchema(t AttrType) *jsonschema.Schema {
	switch t.Kind {
	case KindString:
		return &jsonschema.Schema{Type: "string"}
	case KindInteger:
		return &jsonschema.Schema{Type: "integer"}
	case KindReal:
		return &jsonschema.Schema{Type: "number"}
	case KindBoolean:
		return &jsonschema.Schema{Type: "boolean"}
	case KindEnum:
		vals := make([]any, len(t.Values))
		for i, v := range t.Values {
			vals[i] = v
		}
		return &jsonschema.Schema{Type: "string", Enum: vals}
	case KindRef:
		return refSchema(t.Ref)
	default:
		return &jsonschema.Schema{Description: "any primitive or reference"}
	}
}

func refSchema(target string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: "reference to " + target,
		OneOf: []*jsonschema.Schema{
			{
				Type:                 "object",
				Properties:           map[string]*jsonschema.Schema{"$ref": {Type: "string"}},
				Required:             []string{"$ref"},
				AdditionalProperties: false,
			},
			{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"type_name":  {Type: "string"},
					"global_id":  {Type: "string"},
					"id":         {Type: "string"},
					"attributes": {Type: "object"},
				},
				Required: []string{"type_name", "id", "attributes"},
			},
		},
	}
}
