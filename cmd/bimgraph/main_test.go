package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/bimgraph/mesh"
)

const modelRecords = `{"id":1,"type":"IfcOwnerHistory","attributes":{"CreationDate":1700000000}}
{"id":2,"type":"IfcProject","attributes":{"GlobalId":"PROJ","Name":"Demo","OwnerHistory":{"$ref":"#1"}}}
{"id":3,"type":"IfcSite","attributes":{"GlobalId":"SITE","Name":"Site","OwnerHistory":{"$ref":"#1"}}}
{"id":4,"type":"IfcBuilding","attributes":{"GlobalId":"BLDG","Name":"Main"}}
{"id":5,"type":"IfcBuildingStorey","attributes":{"GlobalId":"L0","Name":"Level 0","Elevation":0}}
{"id":6,"type":"IfcWall","attributes":{"GlobalId":"WALL","Name":"Wall A","PredefinedType":"STANDARD"}}
{"id":7,"type":"IfcRelAggregates","attributes":{"GlobalId":"A1","RelatingObject":{"$ref":"#2"},"RelatedObjects":[{"$ref":"#3"}]}}
{"id":8,"type":"IfcRelAggregates","attributes":{"GlobalId":"A2","RelatingObject":{"$ref":"#3"},"RelatedObjects":[{"$ref":"#4"}]}}
{"id":9,"type":"IfcRelAggregates","attributes":{"GlobalId":"A3","RelatingObject":{"$ref":"#4"},"RelatedObjects":[{"$ref":"#5"}]}}
{"id":10,"type":"IfcRelContainedInSpatialStructure","attributes":{"GlobalId":"C1","RelatingStructure":{"$ref":"#5"},"RelatedElements":[{"$ref":"#6"}]}}
`

type cli struct {
	t      *testing.T
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	cfg := "log_level: error\nstore:\n  dir: " + filepath.Join(dir, "store") + "\noutput:\n  color: never\n"
	c := &cli{t: t, dir: dir, config: filepath.Join(dir, "config.yaml")}
	require.NoError(t, os.WriteFile(c.config, []byte(cfg), 0o644))
	return c
}

func (c *cli) file(name, content string) string {
	c.t.Helper()
	p := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (c *cli) run(args ...string) (string, string, int) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), append([]string{"--config", c.config}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestValidate(t *testing.T) {
	c := newCLI(t)
	out, _, code := c.run("validate", c.file("model.jsonl", modelRecords))
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok 10 entities conform to IFC4\n", out)

	bad := strings.Replace(modelRecords, `"GlobalId":"WALL",`, "", 1)
	out, errOut, code := c.run("validate", c.file("bad.jsonl", bad))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "required")
	assert.Contains(t, errOut, "1 issue(s)")
}

func TestInspect(t *testing.T) {
	c := newCLI(t)
	out, _, code := c.run("inspect", c.file("model.jsonl", modelRecords), "WALL")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `IfcWall<WALL> "Wall A"`)
	assert.Contains(t, out, "inheritance IfcEntity > IfcRoot")
	assert.Contains(t, out, `parent IfcBuildingStorey<L0> "Level 0"`)
	assert.Contains(t, out, `PredefinedType "STANDARD"`)

	_, errOut, code := c.run("inspect", c.file("model.jsonl", modelRecords), "NOPE")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")
}

func TestQuery(t *testing.T) {
	c := newCLI(t)
	records := c.file("model.jsonl", modelRecords)

	out, _, code := c.run("query", records, "--type", "IfcSpatialStructureElement")
	require.Equal(t, 0, code)
	assert.Equal(t, "#3 IfcSite<SITE> \"Site\"\n#4 IfcBuilding<BLDG> \"Main\"\n#5 IfcBuildingStorey<L0> \"Level 0\"\n", out)

	out, _, _ = c.run("query", records, "--name", "Main", "--count")
	assert.Equal(t, "1\n", out)

	out, _, _ = c.run("query", records, "--type", "IfcRelAggregates", "--name", "Main", "--count")
	assert.Equal(t, "0\n", out)

	_, _, code = c.run("query", records, "--type", "IfcNothing")
	assert.Equal(t, 1, code)
}

func TestHierarchy(t *testing.T) {
	c := newCLI(t)
	records := c.file("model.jsonl", modelRecords)

	out, _, code := c.run("hierarchy", records)
	require.Equal(t, 0, code)
	assert.Equal(t, `IfcProject<PROJ> "Demo"
---- IfcSite<SITE> "Site"
-------- IfcBuilding<BLDG> "Main"
------------ IfcBuildingStorey<L0> "Level 0"
---------------- IfcWall<WALL> "Wall A"
`, out)

	out, _, _ = c.run("hierarchy", records, "--root", "BLDG", "--depth", "1")
	assert.Equal(t, "IfcBuilding<BLDG> \"Main\"\n---- IfcBuildingStorey<L0> \"Level 0\"\n", out)
}

func TestExportImportAndStore(t *testing.T) {
	c := newCLI(t)
	records := c.file("model.jsonl", modelRecords)

	for _, format := range []string{"json", "yaml", "msgpack"} {
		t.Run(format, func(t *testing.T) {
			doc := filepath.Join(c.dir, "model."+format)
			_, errOut, code := c.run("export", records, "--format", format, "-o", doc)
			require.Equal(t, 0, code, errOut)

			out, errOut, code := c.run("import", doc, "--save", "snap-"+format)
			require.Equal(t, 0, code, errOut)
			assert.Contains(t, out, "imported 10 entities (IFC4 "+format+")")
			assert.Contains(t, out, "saved snapshot snap-"+format)
		})
	}

	out, _, code := c.run("store", "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "snap-json IFC4 4.0.2.1 10 entities")
	assert.Contains(t, out, "snap-msgpack")
	assert.Contains(t, out, "snap-yaml")

	out, _, code = c.run("store", "load", "snap-yaml", "--format", "json")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"global_id":"WALL"`)

	_, _, code = c.run("store", "delete", "snap-yaml")
	require.Equal(t, 0, code)
	_, errOut, code := c.run("store", "load", "snap-yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")
}

func TestStoreSaveWithDir(t *testing.T) {
	c := newCLI(t)
	dir := filepath.Join(c.dir, "other")
	out, errOut, code := c.run("store", "save", c.file("model.jsonl", modelRecords), "--name", "v1", "--dir", dir)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "saved v1: 10 entities, "+strings.Fields(out)[4]+" bytes\n", out)

	out, _, _ = c.run("store", "list", "--dir", dir)
	assert.True(t, strings.HasPrefix(out, "v1 IFC4"))
	out, _, _ = c.run("store", "list")
	assert.Empty(t, out)
}

func TestExportEntity(t *testing.T) {
	c := newCLI(t)
	out, _, code := c.run("export", c.file("model.jsonl", modelRecords), "--root", "PROJ", "--pretty")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "{\n  "))
	assert.Contains(t, out, `"type_name": "IfcProject"`)
	assert.Contains(t, out, `"type_name": "IfcOwnerHistory"`)

	_, errOut, code := c.run("export", c.file("model.jsonl", modelRecords), "--include", "Name", "--ignore", "GlobalId")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "config conflict")
}

func TestHash(t *testing.T) {
	c := newCLI(t)
	m := mesh.Mesh{
		Vertices: [][3]float64{{0, 0, 0}, {1.00049, 0, 0}, {0, 1, 0}},
		Faces:    [][3]int{{0, 1, 2}},
	}
	p := c.file("tri.json", `{"vertices":[[0,0,0],[1.00049,0,0],[0,1,0]],"faces":[[0,1,2]]}`)

	want3, err := m.SHA256(3)
	require.NoError(t, err)
	out, _, code := c.run("hash", p)
	require.Equal(t, 0, code)
	assert.Equal(t, want3+"\n", out)

	exact, err := m.SHA256(mesh.FullPrecision)
	require.NoError(t, err)
	out, _, _ = c.run("hash", p, "--precision", "-1")
	assert.Equal(t, exact+"\n", out)

	list := c.file("list.yaml", "- vertices: [[0, 0, 0], [1.00049, 0, 0], [0, 1, 0]]\n  faces: [[0, 1, 2]]\n- vertices: [[0, 0, 0]]\n")
	out, _, code = c.run("hash", list)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, want3, lines[0])

	bad := c.file("bad.json", `{"vertices":[[0,0,0]],"faces":[[0,1,2]]}`)
	_, errOut, code := c.run("hash", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid payload")
}

func TestJSONSchema(t *testing.T) {
	c := newCLI(t)
	out, _, code := c.run("jsonschema", "IfcWall")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"GlobalId"`)
	assert.Contains(t, out, `"required"`)

	_, _, code = c.run("jsonschema", "IfcNothing")
	assert.Equal(t, 1, code)
}

func TestBadConfig(t *testing.T) {
	c := newCLI(t)
	_, errOut, code := c.run("--log-level", "loud", "jsonschema", "IfcWall")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "LogLevel")

	_, _, code = c.run("--schema", filepath.Join(c.dir, "missing.yaml"), "jsonschema", "IfcWall")
	assert.Equal(t, 1, code)
}
