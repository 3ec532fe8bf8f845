// Package ifc carries the IFC4 core schema and IFC-flavoured helpers over
// bimgraph graphs: GlobalId generation, the project/site/building/storey
// accessors and property sets.
package ifc

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"github.com/reoring/bimgraph"
	"github.com/reoring/bimgraph/mesh"
	"github.com/reoring/bimgraph/schema"
)

//go:embed ifc4_core.yaml
var coreYAML []byte

// Type names used by the helpers.
const (
	TypeProject                = "IfcProject"
	TypeSite                   = "IfcSite"
	TypeBuilding               = "IfcBuilding"
	TypeBuildingStorey         = "IfcBuildingStorey"
	TypeElement                = "IfcElement"
	TypeObject                 = "IfcObject"
	TypePropertySet            = "IfcPropertySet"
	TypePropertySingleValue    = "IfcPropertySingleValue"
	TypeRelAggregates          = "IfcRelAggregates"
	TypeRelContained           = "IfcRelContainedInSpatialStructure"
	TypeRelDefinesByProperties = "IfcRelDefinesByProperties"
	TypeBuildingElementProxy   = "IfcBuildingElementProxy"
	TypeSpatialElement         = "IfcSpatialElement"
)

var loadSchema = sync.OnceValue(func() *schema.Definition {
	def, err := schema.LoadYAML(coreYAML)
	if err != nil {
		panic(fmt.Sprintf("ifc: embedded schema: %v", err))
	}
	return def
})

// Schema returns the embedded IFC4 core definition. It is built once and
// shared.
func Schema() *schema.Definition { return loadSchema() }

// SchemaYAML returns a copy of the embedded schema source.
func SchemaYAML() []byte { return slices.Clone(coreYAML) }

// Project returns the first IfcProject of g.
func Project(g *bimgraph.Graph) (*bimgraph.Entity, error) {
	ps := g.GetEntitiesByType(TypeProject)
	if len(ps) == 0 {
		return nil, &bimgraph.NotFoundError{Kind: "entity", Key: TypeProject}
	}
	return ps[0], nil
}

// Sites returns every IfcSite in load order.
func Sites(g *bimgraph.Graph) []*bimgraph.Entity { return g.GetEntitiesByType(TypeSite) }

// Buildings returns every IfcBuilding in load order.
func Buildings(g *bimgraph.Graph) []*bimgraph.Entity { return g.GetEntitiesByType(TypeBuilding) }

// Storeys returns every IfcBuildingStorey in load order.
func Storeys(g *bimgraph.Graph) []*bimgraph.Entity {
	return g.GetEntitiesByType(TypeBuildingStorey)
}

// Elements returns every IfcElement (walls, slabs, doors, ...) in load order.
func Elements(g *bimgraph.Graph) []*bimgraph.Entity { return g.GetEntitiesByType(TypeElement) }

// Aggregate decomposes parent into children with a new IfcRelAggregates.
func Aggregate(g *bimgraph.Graph, parent *bimgraph.Entity, children ...*bimgraph.Entity) (*bimgraph.Entity, error) {
	return g.Create(TypeRelAggregates, map[string]any{
		"GlobalId":       NewGlobalID(),
		"RelatingObject": parent,
		"RelatedObjects": entities(children),
	})
}

// Contain places elements in a spatial structure with a new
// IfcRelContainedInSpatialStructure.
func Contain(g *bimgraph.Graph, structure *bimgraph.Entity, elements ...*bimgraph.Entity) (*bimgraph.Entity, error) {
	return g.Create(TypeRelContained, map[string]any{
		"GlobalId":          NewGlobalID(),
		"RelatingStructure": structure,
		"RelatedElements":   entities(elements),
	})
}

// Insert wraps geometry in a new IfcBuildingElementProxy. When parent is a
// spatial element the proxy is contained in it, otherwise it is aggregated
// under parent. A nil parent leaves the proxy unplaced.
func Insert(g *bimgraph.Graph, geometry mesh.Mesh, parent *bimgraph.Entity, name, description string) (*bimgraph.Entity, error) {
	if err := geometry.Validate(); err != nil {
		return nil, err
	}
	attrs := map[string]any{"GlobalId": NewGlobalID()}
	if name != "" {
		attrs["Name"] = name
	}
	if description != "" {
		attrs["Description"] = description
	}
	proxy, err := g.Create(TypeBuildingElementProxy, attrs)
	if err != nil {
		return nil, err
	}
	if err := g.SetGeometry(proxy, geometry); err != nil {
		return nil, err
	}
	switch {
	case parent == nil:
	case parent.IsA(TypeSpatialElement):
		_, err = Contain(g, parent, proxy)
	default:
		_, err = Aggregate(g, parent, proxy)
	}
	if err != nil {
		return nil, fmt.Errorf("place %s: %w", proxy, err)
	}
	return proxy, nil
}

func entities(es []*bimgraph.Entity) []any {
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}
