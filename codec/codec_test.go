package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/bimgraph"
	"github.com/reoring/bimgraph/codec"
	"github.com/reoring/bimgraph/ifc"
)

func smallModel(t *testing.T) *bimgraph.Graph {
	t.Helper()
	g := bimgraph.NewGraph(ifc.Schema())
	hist, err := g.Create("IfcOwnerHistory", map[string]any{"CreationDate": 1700000000})
	require.NoError(t, err)
	storey, err := g.Create("IfcBuildingStorey", map[string]any{"GlobalId": "STOREY", "Name": "L0", "Elevation": 0.0, "OwnerHistory": hist})
	require.NoError(t, err)
	wall, err := g.Create("IfcWall", map[string]any{"GlobalId": "WALL", "Name": "W", "OwnerHistory": hist, "PredefinedType": "SHEAR"})
	require.NoError(t, err)
	_, err = ifc.Contain(g, storey, wall)
	require.NoError(t, err)
	_, err = ifc.AddPropertySet(g, "Pset_WallCommon", map[string]any{"LoadBearing": true, "Width": 0.3, "Layers": 2, "Height": 3.0}, wall)
	require.NoError(t, err)
	return g
}

func TestFormatsRoundTripGraphs(t *testing.T) {
	g := smallModel(t)
	tree, err := g.ToDict()
	require.NoError(t, err)

	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			f, err := codec.Lookup(name)
			require.NoError(t, err)
			data, err := f.Marshal(tree)
			require.NoError(t, err)
			back, err := f.Unmarshal(data)
			require.NoError(t, err)

			g2, err := bimgraph.GraphFromDict(ifc.Schema(), back)
			require.NoError(t, err)
			assert.Equal(t, g.Len(), g2.Len())

			wall, err := g2.GetEntityByGlobalID("WALL")
			require.NoError(t, err)
			parent, err := wall.Parent()
			require.NoError(t, err)
			assert.Equal(t, "STOREY", parent.GlobalID())

			h1, err := wall.GetEntity("OwnerHistory")
			require.NoError(t, err)
			h2, err := parent.GetEntity("OwnerHistory")
			require.NoError(t, err)
			assert.Same(t, h1, h2)

			psets, err := ifc.PropertySets(wall)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"LoadBearing": true, "Width": 0.3, "Layers": int64(2), "Height": 3.0}, psets["Pset_WallCommon"])
		})
	}
}

func TestIntegralFloatsKeepTheirKind(t *testing.T) {
	tree := map[string]any{"f": 3.0, "neg": -2.0, "frac": 0.5, "i": int64(3), "list": []any{1.0e21, "x"}}

	data, err := codec.JSON.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t, `{"f":3.0,"neg":-2.0,"frac":0.5,"i":3,"list":[1000000000000000000000.0,"x"]}`, string(data))
	assert.Contains(t, string(data), `"f":3.0`)

	data, err = codec.YAML.Marshal(tree)
	require.NoError(t, err)
	back, err := codec.YAML.Unmarshal(data)
	require.NoError(t, err)
	m := back.(map[string]any)
	assert.Equal(t, 3.0, m["f"])
	assert.Equal(t, -2.0, m["neg"])
	assert.Equal(t, 3, m["i"])

	assert.Equal(t, 3.0, tree["f"], "input is not modified")
}

func TestMsgPackIsDeterministic(t *testing.T) {
	g := smallModel(t)
	tree, err := g.ToDict()
	require.NoError(t, err)
	a, err := codec.MsgPack.Marshal(tree)
	require.NoError(t, err)
	b, err := codec.MsgPack.Marshal(tree)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func TestLookup(t *testing.T) {
	f, err := codec.Lookup("YML")
	require.NoError(t, err)
	assert.Equal(t, "yaml", f.Name())

	_, err = codec.Lookup("xml")
	assert.ErrorIs(t, err, codec.ErrUnknownFormat)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := codec.JSON.Unmarshal([]byte("{"))
	assert.Error(t, err)
	_, err = codec.YAML.Unmarshal([]byte("a: [1"))
	assert.Error(t, err)
	_, err = codec.YAML.Unmarshal([]byte("{1: a}"))
	assert.Error(t, err, "non-string keys")
}
