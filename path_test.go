package bimgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathRefPointer(t *testing.T) {
	assert.Equal(t, "/", RootPath().Pointer())
	p := RootPath().Field("#12").Field("a/b").Index(3).Field("~x")
	assert.Equal(t, "/#12/a~1b/3/~0x", p.Pointer())
	assert.Equal(t, 4, p.Depth())
	assert.Equal(t, "/#12/a~1b/3", p.Parent().Pointer())
	assert.Equal(t, "/", RootPath().Parent().Pointer())
	assert.Equal(t, p, RootPath().Field("#12").Field("a/b").Index(3).Field("~x").Field(""))
}

func TestPathRefBranchesDoNotAlias(t *testing.T) {
	base := RootPath().Field("x")
	a := base.Field("a")
	b := base.Field("b")
	assert.Equal(t, "/x/a", a.Pointer())
	assert.Equal(t, "/x/b", b.Pointer())
}

func TestPathAt(t *testing.T) {
	assert.Equal(t, RootPath(), PathAt(""))
	assert.Equal(t, RootPath(), PathAt("/"))
	p := PathAt("/#12/a~1b/~0x")
	assert.Equal(t, 3, p.Depth())
	assert.Equal(t, "/#12/a~1b/~0x", p.Pointer())
	assert.Equal(t, RootPath().Field("#12").Field("a/b").Field("~x"), p)
}

func TestIssueAt(t *testing.T) {
	iss := IssueAt(RootPath().Field("Name"), CodeRequired, map[string]any{"field": "Name"})
	assert.Equal(t, "/Name", iss.Path)
	assert.Equal(t, CodeRequired, iss.Code)
	assert.Equal(t, -1, iss.Offset)
	assert.NotEmpty(t, iss.Message)
}
