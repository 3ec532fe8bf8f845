package ifc

import (
	"fmt"
	"maps"
	"slices"

	"github.com/reoring/bimgraph"
)

// PropertySets returns the property sets attached to obj through
// IfcRelDefinesByProperties, keyed by set name and then property name. Only
// single-value properties are read. Entities that are not IfcObjects have no
// property sets.
func PropertySets(obj *bimgraph.Entity) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any)
	if !obj.IsA(TypeObject) {
		return out, nil
	}
	rels, err := obj.GetEntities("IsDefinedBy")
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		pset, err := rel.GetEntity("RelatingPropertyDefinition")
		if err != nil {
			return nil, err
		}
		if pset == nil || !pset.IsA(TypePropertySet) {
			continue
		}
		props, err := pset.GetEntities("HasProperties")
		if err != nil {
			return nil, err
		}
		values := out[pset.Name()]
		if values == nil {
			values = make(map[string]any, len(props))
			out[pset.Name()] = values
		}
		for _, p := range props {
			if !p.IsA(TypePropertySingleValue) {
				continue
			}
			v, err := p.Get("NominalValue")
			if err != nil {
				return nil, err
			}
			values[p.Name()] = v
		}
	}
	return out, nil
}

// AddPropertySet creates an IfcPropertySet named name holding one
// IfcPropertySingleValue per entry of props, and relates it to objs. Values
// other than strings, booleans and numbers are stored as their fmt.Sprint
// text.
func AddPropertySet(g *bimgraph.Graph, name string, props map[string]any, objs ...*bimgraph.Entity) (*bimgraph.Entity, error) {
	values := make([]any, 0, len(props))
	for _, k := range slices.Sorted(maps.Keys(props)) {
		v := props[k]
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64, nil:
		default:
			v = fmt.Sprint(v)
		}
		p, err := g.Create(TypePropertySingleValue, map[string]any{"Name": k, "NominalValue": v})
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", k, err)
		}
		values = append(values, p)
	}
	pset, err := g.Create(TypePropertySet, map[string]any{
		"GlobalId":      NewGlobalID(),
		"Name":          name,
		"HasProperties": values,
	})
	if err != nil {
		return nil, err
	}
	if _, err := g.Create(TypeRelDefinesByProperties, map[string]any{
		"GlobalId":                   NewGlobalID(),
		"RelatedObjects":             entities(objs),
		"RelatingPropertyDefinition": pset,
	}); err != nil {
		return nil, err
	}
	return pset, nil
}
