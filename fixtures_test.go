package bimgraph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reoring/bimgraph"
	"github.com/reoring/bimgraph/schema"
)

func str(name string) schema.Attribute {
	return schema.Attribute{Name: name, Type: schema.AttrType{Kind: schema.KindString}}
}

func optional(a schema.Attribute) schema.Attribute {
	a.Optional = true
	return a
}

func ref(name, target string) schema.Attribute {
	return schema.Attribute{Name: name, Type: schema.AttrType{Kind: schema.KindRef, Ref: target}}
}

func refs(name, target string) schema.Attribute {
	return schema.Attribute{Name: name, Type: schema.AttrType{Kind: schema.KindRef, Ref: target, List: true}}
}

func inverse(name, relation, attr string) schema.Attribute {
	return schema.Attribute{
		Name:    name,
		Type:    schema.AttrType{Kind: schema.KindRef, Ref: relation, List: true},
		Inverse: &schema.InverseOf{Type: relation, Attribute: attr},
	}
}

func realAttr(name string) schema.Attribute {
	return schema.Attribute{Name: name, Type: schema.AttrType{Kind: schema.KindReal}}
}

// testDefinition is a small building schema:
//
//	Root
//	├── History
//	├── Layer
//	├── Rel (RelAggregates, RelContained)
//	└── Object
//	    ├── Spatial (Project, Site, Building, Storey)
//	    └── Element (Wall, Window)
func testDefinition(t testing.TB) *schema.Definition {
	t.Helper()
	def, err := schema.New(schema.Config{
		Name:              "Test",
		Version:           "1",
		GlobalIDAttribute: "globalId",
		NameAttribute:     "name",
		Containment: []schema.ContainmentRule{
			{Relation: "RelAggregates", Parent: "RelatingObject", Children: "RelatedObjects"},
			{Relation: "RelContained", Parent: "RelatingStructure", Children: "RelatedElements"},
		},
	},
		schema.TypeDecl{Name: "Root", Abstract: true},
		schema.TypeDecl{Name: "History", Supertypes: []string{"Root"}, Attributes: []schema.Attribute{str("user")}},
		schema.TypeDecl{Name: "Layer", Supertypes: []string{"Root"}, Attributes: []schema.Attribute{realAttr("thickness"), optional(ref("next", "Layer"))}},
		schema.TypeDecl{Name: "Object", Supertypes: []string{"Root"}, Abstract: true, Attributes: []schema.Attribute{
			str("globalId"),
			optional(str("name")),
			optional(ref("history", "History")),
			inverse("Decomposes", "RelAggregates", "RelatedObjects"),
			inverse("IsDecomposedBy", "RelAggregates", "RelatingObject"),
		}},
		schema.TypeDecl{Name: "Spatial", Supertypes: []string{"Object"}, Abstract: true},
		schema.TypeDecl{Name: "Project", Supertypes: []string{"Spatial"}},
		schema.TypeDecl{Name: "Site", Supertypes: []string{"Spatial"}},
		schema.TypeDecl{Name: "Building", Supertypes: []string{"Spatial"}},
		schema.TypeDecl{Name: "Storey", Supertypes: []string{"Spatial"}, Attributes: []schema.Attribute{optional(realAttr("elevation"))}},
		schema.TypeDecl{Name: "Element", Supertypes: []string{"Object"}, Abstract: true, Attributes: []schema.Attribute{
			inverse("ContainedIn", "RelContained", "RelatedElements"),
		}},
		schema.TypeDecl{Name: "Wall", Supertypes: []string{"Element"}, Attributes: []schema.Attribute{
			optional(schema.Attribute{Name: "kind", Type: schema.AttrType{Kind: schema.KindEnum, Values: []string{"STANDARD", "SHEAR"}}}),
			optional(refs("layers", "Layer")),
		}},
		schema.TypeDecl{Name: "Window", Supertypes: []string{"Element"}, Attributes: []schema.Attribute{optional(realAttr("width"))}},
		schema.TypeDecl{Name: "Rel", Supertypes: []string{"Root"}, Abstract: true, Attributes: []schema.Attribute{optional(str("globalId"))}},
		schema.TypeDecl{Name: "RelAggregates", Supertypes: []string{"Rel"}, Attributes: []schema.Attribute{
			ref("RelatingObject", "Object"),
			refs("RelatedObjects", "Object"),
		}},
		schema.TypeDecl{Name: "RelContained", Supertypes: []string{"Rel"}, Attributes: []schema.Attribute{
			ref("RelatingStructure", "Spatial"),
			refs("RelatedElements", "Element"),
		}},
	)
	require.NoError(t, err)
	return def
}

func r(id int64) bimgraph.Ref { return bimgraph.Ref{ID: id} }

// buildingRecords is a project with one site, building and storey holding
// two windows and a wall. Every object shares history #1.
func buildingRecords() []bimgraph.Record {
	return []bimgraph.Record{
		{ID: 1, Type: "History", Attributes: map[string]any{"user": "alice"}},
		{ID: 2, Type: "Project", Attributes: map[string]any{"globalId": "P", "name": "Project", "history": r(1)}},
		{ID: 3, Type: "Site", Attributes: map[string]any{"globalId": "S", "name": "Site", "history": r(1)}},
		{ID: 4, Type: "Building", Attributes: map[string]any{"globalId": "B", "name": "Building", "history": r(1)}},
		{ID: 5, Type: "Storey", Attributes: map[string]any{"globalId": "L1", "name": "Level 1", "elevation": 0, "history": r(1)}},
		{ID: 6, Type: "Window", Attributes: map[string]any{"globalId": "WIN1", "name": "W-101", "width": 1.2, "history": r(1)}},
		{ID: 7, Type: "Wall", Attributes: map[string]any{"globalId": "WALL1", "name": "Wall A", "kind": "STANDARD", "history": r(1), "layers": []any{r(12), r(12)}}},
		{ID: 8, Type: "Window", Attributes: map[string]any{"globalId": "WIN2", "name": "W-102", "history": r(1)}},
		{ID: 9, Type: "RelAggregates", Attributes: map[string]any{"RelatingObject": r(2), "RelatedObjects": []any{r(3)}}},
		{ID: 10, Type: "RelAggregates", Attributes: map[string]any{"RelatingObject": r(3), "RelatedObjects": []any{r(4)}}},
		{ID: 11, Type: "RelAggregates", Attributes: map[string]any{"RelatingObject": r(4), "RelatedObjects": []any{r(5)}}},
		{ID: 12, Type: "Layer", Attributes: map[string]any{"thickness": 0.2}},
		{ID: 13, Type: "RelContained", Attributes: map[string]any{"RelatingStructure": r(5), "RelatedElements": []any{r(6), r(7), r(8)}}},
	}
}

func loadBuilding(t testing.TB) *bimgraph.Graph {
	t.Helper()
	g, err := bimgraph.Load(context.Background(), testDefinition(t), bimgraph.Records(buildingRecords()...), bimgraph.LoadOpt{Validate: true})
	require.NoError(t, err)
	return g
}

func mustGID(t testing.TB, g *bimgraph.Graph, gid string) *bimgraph.Entity {
	t.Helper()
	e, err := g.GetEntityByGlobalID(gid)
	require.NoError(t, err)
	return e
}
