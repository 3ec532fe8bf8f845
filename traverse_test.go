package bimgraph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/bimgraph"
)

func gids(t *testing.T, es []*bimgraph.Entity) []string {
	t.Helper()
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.GlobalID()
	}
	return out
}

func collect(t *testing.T, seq func(func(*bimgraph.Entity, error) bool)) []*bimgraph.Entity {
	t.Helper()
	var out []*bimgraph.Entity
	for e, err := range seq {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestParentAndChildren(t *testing.T) {
	g := loadBuilding(t)

	p, err := mustGID(t, g, "L1").Parent()
	require.NoError(t, err)
	assert.Equal(t, "B", p.GlobalID())

	p, err = mustGID(t, g, "WIN1").Parent()
	require.NoError(t, err)
	assert.Equal(t, "L1", p.GlobalID())

	p, err = mustGID(t, g, "P").Parent()
	require.NoError(t, err)
	assert.Nil(t, p)

	kids, err := mustGID(t, g, "L1").Children()
	require.NoError(t, err)
	assert.Equal(t, []string{"WIN1", "WALL1", "WIN2"}, gids(t, kids))
}

func TestTraversals(t *testing.T) {
	g := loadBuilding(t)

	up := collect(t, mustGID(t, g, "WALL1").TraverseAncestors())
	assert.Equal(t, []string{"L1", "B", "S", "P"}, gids(t, up))

	down := collect(t, mustGID(t, g, "P").Traverse())
	assert.Equal(t, []string{"S", "B", "L1", "WIN1", "WALL1", "WIN2"}, gids(t, down))

	branch := collect(t, mustGID(t, g, "B").TraverseBranch())
	assert.Equal(t, []string{"P", "S", "B", "L1", "WIN1", "WALL1", "WIN2"}, gids(t, branch))

	desc, err := mustGID(t, g, "S").Descendants()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "L1", "WIN1", "WALL1", "WIN2"}, gids(t, desc))

	// Stopping early is honoured.
	n := 0
	for range mustGID(t, g, "P").Traverse() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestChildrenByType(t *testing.T) {
	g := loadBuilding(t)
	project := mustGID(t, g, "P")

	wins, err := project.ChildrenByType("Window", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"WIN1", "WIN2"}, gids(t, wins))

	wins, err = project.ChildrenByType("Window", false)
	require.NoError(t, err)
	assert.Empty(t, wins)

	spatial, err := mustGID(t, g, "S").ChildrenByType("Spatial", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, gids(t, spatial))
}

func TestPrintSpatialHierarchy(t *testing.T) {
	g := loadBuilding(t)
	project := mustGID(t, g, "P")

	var b strings.Builder
	require.NoError(t, project.PrintSpatialHierarchy(&b, 4))
	want := strings.Join([]string{
		`Project<P> "Project"`,
		`---- Site<S> "Site"`,
		`-------- Building<B> "Building"`,
		`------------ Storey<L1> "Level 1"`,
		`---------------- Window<WIN1> "W-101"`,
		`---------------- Wall<WALL1> "Wall A"`,
		`---------------- Window<WIN2> "W-102"`,
	}, "\n") + "\n"
	assert.Equal(t, want, b.String())

	b.Reset()
	require.NoError(t, project.PrintSpatialHierarchy(&b, 2))
	assert.Equal(t, 3, strings.Count(b.String(), "\n"))

	b.Reset()
	require.NoError(t, project.PrintSpatialHierarchy(&b, -1))
	assert.Equal(t, want, b.String())
}

func cyclicGraph(t *testing.T) *bimgraph.Graph {
	t.Helper()
	g, err := bimgraph.Load(context.Background(), testDefinition(t), bimgraph.Records(
		bimgraph.Record{ID: 1, Type: "Site", Attributes: map[string]any{"globalId": "A"}},
		bimgraph.Record{ID: 2, Type: "Site", Attributes: map[string]any{"globalId": "B"}},
		bimgraph.Record{ID: 3, Type: "RelAggregates", Attributes: map[string]any{"RelatingObject": r(1), "RelatedObjects": []any{r(2)}}},
		bimgraph.Record{ID: 4, Type: "RelAggregates", Attributes: map[string]any{"RelatingObject": r(2), "RelatedObjects": []any{r(1)}}},
	), bimgraph.LoadOpt{Validate: true})
	require.NoError(t, err)
	return g
}

func TestCyclicHierarchy(t *testing.T) {
	g := cyclicGraph(t)
	a := mustGID(t, g, "A")

	var seen []string
	var last error
	for e, err := range a.TraverseAncestors() {
		if err != nil {
			last = err
			break
		}
		seen = append(seen, e.GlobalID())
	}
	assert.Equal(t, []string{"B"}, seen)
	require.ErrorIs(t, last, bimgraph.ErrCyclicHierarchy)
	var ce *bimgraph.CyclicHierarchyError
	require.ErrorAs(t, last, &ce)
	assert.Equal(t, 2, ce.Depth)

	var b strings.Builder
	err := a.PrintSpatialHierarchy(&b, -1)
	require.ErrorIs(t, err, bimgraph.ErrCyclicHierarchy)
	assert.Equal(t, "Site<A>\n---- Site<B>\n", b.String())

	// A bounded print stops before the repeat.
	b.Reset()
	require.NoError(t, a.PrintSpatialHierarchy(&b, 1))

	_, err = a.Descendants()
	assert.ErrorIs(t, err, bimgraph.ErrCyclicHierarchy)

	for _, err := range a.TraverseBranch() {
		if err != nil {
			assert.ErrorIs(t, err, bimgraph.ErrCyclicHierarchy)
		}
	}
}

func TestSharedChildYieldedOnce(t *testing.T) {
	g, err := bimgraph.Load(context.Background(), testDefinition(t), bimgraph.Records(
		bimgraph.Record{ID: 1, Type: "Storey", Attributes: map[string]any{"globalId": "L"}},
		bimgraph.Record{ID: 2, Type: "Wall", Attributes: map[string]any{"globalId": "W"}},
		bimgraph.Record{ID: 3, Type: "RelContained", Attributes: map[string]any{"RelatingStructure": r(1), "RelatedElements": []any{r(2)}}},
		bimgraph.Record{ID: 4, Type: "RelContained", Attributes: map[string]any{"RelatingStructure": r(1), "RelatedElements": []any{r(2)}}},
	))
	require.NoError(t, err)

	kids, err := mustGID(t, g, "L").Children()
	require.NoError(t, err)
	assert.Len(t, kids, 2)

	desc, err := mustGID(t, g, "L").Descendants()
	require.NoError(t, err)
	assert.Equal(t, []string{"W"}, gids(t, desc))
}
