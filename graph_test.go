package bimgraph_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/bimgraph"
)

func TestIdentityCache(t *testing.T) {
	g := loadBuilding(t)

	wall := mustGID(t, g, "WALL1")
	win := mustGID(t, g, "WIN1")
	h1, err := wall.GetEntity("history")
	require.NoError(t, err)
	h2, err := win.GetEntity("history")
	require.NoError(t, err)
	require.Same(t, h1, h2, "shared history must be one instance")

	byID, err := g.GetEntityByID(1)
	require.NoError(t, err)
	assert.Same(t, h1, byID)

	// A mutation through one reference is visible through every other.
	require.NoError(t, h1.Set("user", "bob"))
	v, err := h2.Get("user")
	require.NoError(t, err)
	assert.Equal(t, "bob", v)
}

func TestIsA(t *testing.T) {
	g := loadBuilding(t)
	wall := mustGID(t, g, "WALL1")

	assert.True(t, wall.IsA("Wall"))
	assert.True(t, wall.IsA("Element"))
	assert.True(t, wall.IsA("Root"))
	assert.False(t, wall.IsA("Spatial"))
	assert.False(t, wall.IsA("Unknown"))
}

func TestAllAttributeNamesAndInfo(t *testing.T) {
	g := loadBuilding(t)
	wall := mustGID(t, g, "WALL1")

	assert.Equal(t,
		[]string{"globalId", "name", "history", "Decomposes", "IsDecomposedBy", "ContainedIn", "kind", "layers"},
		wall.AllAttributeNames())

	info, err := wall.AttributeInfo("ContainedIn")
	require.NoError(t, err)
	assert.True(t, info.IsInverse())
	assert.Equal(t, "Element", info.DeclaredBy)

	_, err = wall.AttributeInfo("height")
	assert.True(t, bimgraph.IsNotFound(err))

	_, err = wall.Get("height")
	assert.ErrorIs(t, err, bimgraph.ErrNotFound)
}

func TestQueryWindows(t *testing.T) {
	g := loadBuilding(t)

	wins := g.GetEntitiesByType("Window")
	require.Len(t, wins, 2)
	assert.Equal(t, "W-101", wins[0].Name())
	assert.Equal(t, "W-102", wins[1].Name())

	elems := g.GetEntitiesByType("Element")
	require.Len(t, elems, 3)
	assert.Equal(t, []string{"WIN1", "WALL1", "WIN2"}, []string{elems[0].GlobalID(), elems[1].GlobalID(), elems[2].GlobalID()})

	assert.Empty(t, g.GetEntitiesByType("Nope"))

	assert.Empty(t, g.GetEntitiesByExactType("Element"), "abstract supertype has no direct instances")
	exact := g.GetEntitiesByExactType("Window")
	require.Len(t, exact, 2)
	assert.Equal(t, "WIN1", exact[0].GlobalID())
	assert.Equal(t, "WIN2", exact[1].GlobalID())
	assert.Len(t, g.GetEntitiesByType("Spatial"), 4)
	assert.Len(t, g.GetEntitiesByExactType("Site"), 1)
	assert.Empty(t, g.GetEntitiesByExactType("Nope"))

	named := g.GetEntitiesByName("W-102")
	require.Len(t, named, 1)
	assert.Equal(t, "WIN2", named[0].GlobalID())
	assert.Empty(t, g.GetEntitiesByName("w-102"), "name lookup is case-sensitive")

	_, err := g.GetEntityByGlobalID("nonexistent")
	require.ErrorIs(t, err, bimgraph.ErrNotFound)
	var nf *bimgraph.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nonexistent", nf.Key)

	assert.Len(t, g.GetAllEntities(), 13)
	assert.Equal(t, 13, g.Len())
}

func TestLoadCollisionsAreAmbiguous(t *testing.T) {
	def := testDefinition(t)
	recs := []bimgraph.Record{
		{ID: 1, Type: "History", Attributes: map[string]any{"user": "a"}},
		{ID: 1, Type: "History", Attributes: map[string]any{"user": "b"}},
		{ID: 2, Type: "Window", Attributes: map[string]any{"globalId": "G"}},
		{ID: 3, Type: "Window", Attributes: map[string]any{"globalId": "G"}},
	}
	g, err := bimgraph.Load(context.Background(), def, bimgraph.Records(recs...))
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len(), "first record wins")

	_, err = g.GetEntityByID(1)
	var amb *bimgraph.AmbiguousLookupError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, 2, amb.Count)

	_, err = g.GetEntityByGlobalID("#1")
	assert.ErrorIs(t, err, bimgraph.ErrAmbiguousLookup)

	_, err = g.GetEntityByGlobalID("G")
	assert.ErrorIs(t, err, bimgraph.ErrAmbiguousLookup)

	_, err = g.GetEntityByID(99)
	assert.ErrorIs(t, err, bimgraph.ErrNotFound)
}

func TestLoadRejectsUnknownTypeAndBadIdentity(t *testing.T) {
	def := testDefinition(t)

	_, err := bimgraph.Load(context.Background(), def, bimgraph.Records(
		bimgraph.Record{ID: 1, Type: "Door"},
	))
	require.ErrorIs(t, err, bimgraph.ErrSchemaViolation)
	iss, ok := bimgraph.AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, []string{bimgraph.CodeUnknownType}, iss.Codes())

	_, err = bimgraph.Load(context.Background(), def, bimgraph.Records(
		bimgraph.Record{ID: 0, Type: "History"},
	))
	assert.ErrorIs(t, err, bimgraph.ErrMalformedDocument)
}

func TestLoadValidate(t *testing.T) {
	def := testDefinition(t)
	recs := []bimgraph.Record{
		{ID: 1, Type: "Wall", Attributes: map[string]any{"name": "W1", "history": r(2)}},
		{ID: 2, Type: "Layer", Attributes: map[string]any{"thickness": 0.1}},
	}

	_, err := bimgraph.Load(context.Background(), def, bimgraph.Records(recs...))
	require.NoError(t, err, "validation is opt-in")

	_, err = bimgraph.Load(context.Background(), def, bimgraph.Records(recs...), bimgraph.LoadOpt{Validate: true})
	require.ErrorIs(t, err, bimgraph.ErrSchemaViolation)
	iss, _ := bimgraph.AsIssues(err)
	assert.ElementsMatch(t, []string{bimgraph.CodeRequired, bimgraph.CodeInvalidType}, iss.Codes())
}

func TestLoadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bimgraph.Load(ctx, testDefinition(t), bimgraph.Records(buildingRecords()...))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadFlattensNestedRecords(t *testing.T) {
	def := testDefinition(t)
	g, err := bimgraph.Load(context.Background(), def, bimgraph.Records(
		bimgraph.Record{ID: 5, Type: "Wall", Attributes: map[string]any{
			"globalId": "W",
			"layers": []any{
				bimgraph.Record{Type: "Layer", Attributes: map[string]any{"thickness": 0.1}},
				bimgraph.Record{Type: "Layer", Attributes: map[string]any{"thickness": 0.3}},
			},
		}},
	), bimgraph.LoadOpt{Validate: true})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	layers, err := mustGID(t, g, "W").GetEntities("layers")
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, int64(6), layers[0].ID())
	assert.Len(t, g.GetEntitiesByType("Layer"), 2)
}

func TestLoadRejectsNestedUnknownType(t *testing.T) {
	_, err := bimgraph.Load(context.Background(), testDefinition(t), bimgraph.Records(
		bimgraph.Record{ID: 1, Type: "Window", Attributes: map[string]any{
			"globalId": "W",
			"history":  bimgraph.Record{Type: "Bogus", Attributes: map[string]any{"user": "bob"}},
		}},
	))
	require.ErrorIs(t, err, bimgraph.ErrSchemaViolation)
	iss, ok := bimgraph.AsIssues(err)
	require.True(t, ok)
	require.Len(t, iss, 1)
	assert.Equal(t, bimgraph.CodeUnknownType, iss[0].Code)
	assert.Equal(t, "/#1/history", iss[0].Path)
}

func TestSetFlattensNestedRecords(t *testing.T) {
	g := loadBuilding(t)
	wall := mustGID(t, g, "WALL1")
	before := g.Len()

	require.NoError(t, wall.SetAttributes(map[string]any{
		"history": bimgraph.Record{Type: "History", Attributes: map[string]any{"user": "bob"}},
		"layers": []any{
			bimgraph.Record{Type: "Layer", Attributes: map[string]any{"thickness": 0.1}},
		},
	}))
	assert.Equal(t, before+2, g.Len())
	assert.Len(t, g.GetEntitiesByType("History"), 2)

	h, err := wall.GetEntity("history")
	require.NoError(t, err)
	assert.True(t, h.Attached())
	user, err := h.Get("user")
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	doc, err := wall.ToJSON()
	require.NoError(t, err)
	back, err := bimgraph.FromJSON(g.Definition(), doc)
	require.NoError(t, err)
	bh, err := back.GetEntity("history")
	require.NoError(t, err)
	user, err = bh.Get("user")
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
	layers, err := back.GetEntities("layers")
	require.NoError(t, err)
	require.Len(t, layers, 1)

	cp, err := wall.Copy()
	require.NoError(t, err)
	err = cp.Set("history", bimgraph.Record{Type: "History", Attributes: map[string]any{"user": "eve"}})
	assert.ErrorIs(t, err, bimgraph.ErrNotFound)
	assert.Equal(t, before+2, g.Len())
}

func TestJSONRecordSource(t *testing.T) {
	def := testDefinition(t)
	var buf strings.Builder
	require.NoError(t, bimgraph.WriteJSONRecords(&buf, buildingRecords()...))

	g, err := bimgraph.Load(context.Background(), def, bimgraph.NewJSONRecordSource(strings.NewReader(buf.String())), bimgraph.LoadOpt{Validate: true})
	require.NoError(t, err)
	assert.Equal(t, 13, g.Len())

	storey := mustGID(t, g, "L1")
	elev, err := storey.Get("elevation")
	require.NoError(t, err)
	assert.Equal(t, 0.0, elev)

	_, err = bimgraph.Load(context.Background(), def, bimgraph.NewJSONRecordSource(strings.NewReader(`{"id":1,"type":"History","attributes":{"user":{"x":1}}}`)))
	assert.ErrorIs(t, err, bimgraph.ErrMalformedDocument)
}

func TestCreateAndSet(t *testing.T) {
	g := loadBuilding(t)

	hist, err := g.GetEntityByID(1)
	require.NoError(t, err)
	w, err := g.Create("Window", map[string]any{"globalId": "WIN3", "name": "W-103", "history": hist, "width": 2})
	require.NoError(t, err)
	assert.True(t, w.Attached())
	assert.Len(t, g.GetEntitiesByType("Window"), 3)
	width, err := w.Get("width")
	require.NoError(t, err)
	assert.Equal(t, 2.0, width)

	_, err = g.Create("Window", map[string]any{"globalId": "WIN3"})
	assert.ErrorIs(t, err, bimgraph.ErrDuplicateIdentity)

	_, err = g.Create("Window", map[string]any{"name": "no id"})
	assert.ErrorIs(t, err, bimgraph.ErrSchemaViolation)

	require.NoError(t, w.Set("name", "W-999"))
	assert.Empty(t, g.GetEntitiesByName("W-103"))
	assert.Len(t, g.GetEntitiesByName("W-999"), 1)

	require.NoError(t, w.Set("globalId", "WIN4"))
	_, err = g.GetEntityByGlobalID("WIN3")
	assert.ErrorIs(t, err, bimgraph.ErrNotFound)
	assert.Same(t, w, mustGID(t, g, "WIN4"))

	assert.ErrorIs(t, w.Set("globalId", "WIN1"), bimgraph.ErrDuplicateIdentity)
	assert.ErrorIs(t, w.Set("width", "wide"), bimgraph.ErrSchemaViolation)
	assert.ErrorIs(t, w.Set("ContainedIn", nil), bimgraph.ErrSchemaViolation)
	assert.ErrorIs(t, w.Set("globalId", nil), bimgraph.ErrSchemaViolation)

	// Nothing is applied when one value is rejected.
	err = w.SetAttributes(map[string]any{"name": "changed", "width": true})
	require.Error(t, err)
	assert.Equal(t, "W-999", w.Name())

	require.NoError(t, w.Set("width", nil))
	width, err = w.Get("width")
	require.NoError(t, err)
	assert.Nil(t, width)
}

func TestInverseAttributes(t *testing.T) {
	g := loadBuilding(t)
	wall := mustGID(t, g, "WALL1")

	rels, err := wall.GetEntities("ContainedIn")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "RelContained", rels[0].TypeName())

	site := mustGID(t, g, "S")
	dec, err := site.GetEntities("Decomposes")
	require.NoError(t, err)
	require.Len(t, dec, 1)
	by, err := site.GetEntities("IsDecomposedBy")
	require.NoError(t, err)
	require.Len(t, by, 1)
	assert.NotSame(t, dec[0], by[0])

	// The reverse index follows mutations.
	win, err := g.Create("Window", map[string]any{"globalId": "WIN3"})
	require.NoError(t, err)
	empty, err := win.Get("ContainedIn")
	require.NoError(t, err)
	assert.Equal(t, []any{}, empty)

	storey := mustGID(t, g, "L1")
	_, err = g.Create("RelContained", map[string]any{"RelatingStructure": storey, "RelatedElements": []any{win}})
	require.NoError(t, err)
	rels, err = win.GetEntities("ContainedIn")
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestFreeze(t *testing.T) {
	g := loadBuilding(t)
	g.Freeze()
	assert.True(t, g.Frozen())

	wall := mustGID(t, g, "WALL1")
	assert.ErrorIs(t, wall.Set("name", "x"), bimgraph.ErrFrozen)
	_, err := g.Create("History", map[string]any{"user": "x"})
	assert.ErrorIs(t, err, bimgraph.ErrFrozen)
	_, err = wall.Copy()
	assert.ErrorIs(t, err, bimgraph.ErrFrozen)

	h, err := wall.GetEntity("history")
	require.NoError(t, err)
	assert.Equal(t, "History", h.TypeName())
}

func TestEntityString(t *testing.T) {
	g := loadBuilding(t)
	assert.Equal(t, `Wall<WALL1> "Wall A"`, mustGID(t, g, "WALL1").String())
	h, err := g.GetEntityByID(1)
	require.NoError(t, err)
	assert.Equal(t, "History<#1>", h.String())

	var nilEntity *bimgraph.Entity
	assert.Equal(t, "<nil>", nilEntity.String())
}

func TestPrintInheritance(t *testing.T) {
	g := loadBuilding(t)
	var b strings.Builder
	require.NoError(t, mustGID(t, g, "WALL1").PrintInheritance(&b))
	assert.Equal(t, "- Root\n-- Object\n--- Element\n---- Wall\n", b.String())
}
