package bimgraph

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/reoring/bimgraph/mesh"
	"github.com/reoring/bimgraph/schema"
)

// Entity is the canonical wrapper of one record. A Graph hands out exactly one
// *Entity per identity, so pointer equality is identity equality and a
// mutation through one reference is visible through all.
type Entity struct {
	g *Graph
	n *node
}

// TypeName returns the concrete schema type.
func (e *Entity) TypeName() string { return e.n.typ }

// ID returns the internal identity, unique within the graph.
func (e *Entity) ID() int64 { return e.n.id }

// GlobalID returns the value of the schema's global-id attribute, or "".
func (e *Entity) GlobalID() string { return e.g.stringAttr(e.n, e.g.def.GlobalIDAttribute()) }

// Name returns the value of the schema's name attribute, or "".
func (e *Entity) Name() string { return e.g.stringAttr(e.n, e.g.def.NameAttribute()) }

// Graph returns the owning graph.
func (e *Entity) Graph() *Graph { return e.g }

// Attached reports whether the entity is part of the graph's indices. Copies
// stay detached until Graph.Insert.
func (e *Entity) Attached() bool { return e.n.attached }

// IsA reports whether the entity's type equals typeName or specializes it.
func (e *Entity) IsA(typeName string) bool { return e.g.def.IsA(e.n.typ, typeName) }

// AllAttributeNames lists every declared attribute of the concrete type,
// inherited ones first.
func (e *Entity) AllAttributeNames() []string { return e.g.def.AttributeNames(e.n.typ) }

// HasAttribute reports whether name is declared for the entity's type.
func (e *Entity) HasAttribute(name string) bool {
	_, ok := e.g.def.Attribute(e.n.typ, name)
	return ok
}

// AttributeInfo returns the static metadata of name.
func (e *Entity) AttributeInfo(name string) (schema.Attribute, error) {
	a, ok := e.g.def.Attribute(e.n.typ, name)
	if !ok {
		return schema.Attribute{}, notFound("attribute", e.n.typ+"."+name)
	}
	return a, nil
}

// Get returns the value of a declared attribute: a primitive, an *Entity,
// a []any of those, or nil when unset. References are resolved on first read
// and the resolution is kept. Inverse attributes are computed from the
// graph's reverse index.
func (e *Entity) Get(name string) (any, error) {
	a, ok := e.g.def.Attribute(e.n.typ, name)
	if !ok {
		return nil, notFound("attribute", e.n.typ+"."+name)
	}
	if a.IsInverse() {
		return e.inverse(a), nil
	}
	raw, ok := e.n.attrs[name]
	if !ok || raw == nil {
		return nil, nil
	}
	v, changed, err := e.g.resolve(raw)
	if err != nil {
		return nil, err
	}
	if changed && !e.g.frozen {
		e.n.attrs[name] = v
	}
	if l, ok := v.([]any); ok {
		return slices.Clone(l), nil
	}
	return v, nil
}

// GetEntity is Get for single reference attributes.
func (e *Entity) GetEntity(name string) (*Entity, error) {
	v, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	ref, _ := v.(*Entity)
	return ref, nil
}

// GetEntities is Get for reference lists; non-entity elements are skipped.
func (e *Entity) GetEntities(name string) ([]*Entity, error) {
	v, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	var out []*Entity
	switch x := v.(type) {
	case *Entity:
		out = append(out, x)
	case []any:
		for _, el := range x {
			if ref, ok := el.(*Entity); ok {
				out = append(out, ref)
			}
		}
	}
	return out, nil
}

func (e *Entity) inverse(a schema.Attribute) any {
	srcs := e.g.reverse().sources(a.Inverse.Attribute, e.n.id)
	var out []any
	for _, id := range srcs {
		nd := e.g.nodes[id]
		if e.g.def.IsA(nd.typ, a.Inverse.Type) {
			out = append(out, e.g.wrap(nd))
		}
	}
	if a.Type.List {
		if out == nil {
			out = []any{}
		}
		return out
	}
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

// resolve replaces Ref placeholders in v with entities. changed reports
// whether anything was replaced.
func (g *Graph) resolve(v any) (out any, changed bool, err error) {
	switch x := v.(type) {
	case Ref:
		nd, ok := g.nodes[x.ID]
		if !ok {
			return nil, false, notFound("entity", x.String())
		}
		return g.wrap(nd), true, nil
	case []any:
		var cp []any
		for i, el := range x {
			r, ch, err := g.resolve(el)
			if err != nil {
				return nil, false, err
			}
			if ch && cp == nil {
				cp = slices.Clone(x)
			}
			if cp != nil {
				cp[i] = r
			}
		}
		if cp != nil {
			return cp, true, nil
		}
	}
	return v, false, nil
}

// Set validates and assigns one attribute. nil clears an optional attribute.
// Inverse attributes cannot be assigned.
func (e *Entity) Set(name string, value any) error {
	return e.SetAttributes(map[string]any{name: value})
}

// SetAttributes validates and assigns several attributes at once; nothing is
// assigned when any value is rejected.
func (e *Entity) SetAttributes(values map[string]any) error {
	if err := e.g.mutable(); err != nil {
		return err
	}
	v := validator{def: e.g.def, resolve: e.g.typeOf}
	coerced := make(map[string]any, len(values))
	var iss Issues
	for _, name := range sortedKeys(values) {
		p := RootPath().Field(name)
		a, ok := e.g.def.Attribute(e.n.typ, name)
		if !ok {
			iss = AppendIssues(iss, IssueAt(p, CodeUnknownAttribute, map[string]any{"attribute": name, "type": e.n.typ}))
			continue
		}
		if a.IsInverse() {
			iss = AppendIssues(iss, IssueAt(p, CodeInverseAssigned, map[string]any{"attribute": name}))
			continue
		}
		val := values[name]
		if val == nil {
			if a.Required() {
				iss = AppendIssues(iss, IssueAt(p, CodeRequired, map[string]any{"attribute": name}))
			}
			coerced[name] = nil
			continue
		}
		val = coerceValue(e.g.def, a.Type, val)
		iss = append(iss, v.attr(a.Type, val, p, 0)...)
		coerced[name] = val
	}
	if len(iss) > 0 {
		return iss
	}
	if err := e.g.checkValues(coerced, e.n.attached); err != nil {
		return err
	}
	if !e.n.attached && slices.ContainsFunc(slices.Collect(maps.Values(coerced)), hasRecord) {
		return fmt.Errorf("%w: %s is detached; insert it before assigning nested records", ErrNotFound, e)
	}
	gidAttr := e.g.def.GlobalIDAttribute()
	if gv, ok := coerced[gidAttr]; ok && e.n.attached {
		if gid := stringValue(gv); gid != "" && gid != e.GlobalID() && len(e.g.byGlobalID[gid]) > 0 {
			return fmt.Errorf("%w: global id %q", ErrDuplicateIdentity, gid)
		}
	}

	var created []*node
	if e.n.attached {
		var fiss Issues
		if created, fiss = e.g.flattenAttrs(coerced); len(fiss) > 0 {
			return fiss
		}
		e.g.unindexKeys(e.n)
	}
	for name, val := range coerced {
		if val == nil {
			delete(e.n.attrs, name)
			continue
		}
		e.n.attrs[name] = val
	}
	if e.n.attached {
		e.g.reindexKeys(e.n)
		for _, c := range created {
			e.g.index(c)
		}
		e.g.touch()
	}
	return nil
}

func (g *Graph) unindexKeys(nd *node) {
	if name := g.stringAttr(nd, g.def.NameAttribute()); name != "" {
		removeID(g.byName, name, nd.id)
	}
	if gid := g.stringAttr(nd, g.def.GlobalIDAttribute()); gid != "" {
		removeID(g.byGlobalID, gid, nd.id)
	}
}

func (g *Graph) reindexKeys(nd *node) {
	if name := g.stringAttr(nd, g.def.NameAttribute()); name != "" {
		g.byName[name] = g.insertOrdered(g.byName[name], nd.id)
	}
	if gid := g.stringAttr(nd, g.def.GlobalIDAttribute()); gid != "" {
		g.byGlobalID[gid] = g.insertOrdered(g.byGlobalID[gid], nd.id)
	}
}

// insertOrdered keeps index slices sorted by graph order.
func (g *Graph) insertOrdered(ids []int64, id int64) []int64 {
	i, _ := slices.BinarySearchFunc(ids, g.pos[id], func(x int64, p int) int { return g.pos[x] - p })
	return slices.Insert(ids, i, id)
}

// Attributes returns a copy of the stored forward attributes with references
// resolved.
func (e *Entity) Attributes() (map[string]any, error) {
	out := make(map[string]any, len(e.n.attrs))
	for name := range e.n.attrs {
		if !e.HasAttribute(name) {
			continue
		}
		v, err := e.Get(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Inheritance returns the type chain from the schema root down to the
// entity's type.
func (e *Entity) Inheritance() []string { return e.g.def.Inheritance(e.n.typ) }

// PrintInheritance writes the inheritance chain as a nested list.
func (e *Entity) PrintInheritance(w io.Writer) error {
	for i, t := range e.Inheritance() {
		if _, err := fmt.Fprintf(w, "%s %s\n", strings.Repeat("-", i+1), t); err != nil {
			return err
		}
	}
	return nil
}

// Geometry returns the payload attached with Graph.SetGeometry.
func (e *Entity) Geometry() (mesh.Mesh, bool) {
	m, ok := e.g.geometry[e.n.id]
	return m, ok
}

// String returns a short label such as IfcWall<2O2Fr$t4X7Zf8NOew3FLOH> "Wall A"
// or IfcOwnerHistory<#5>.
func (e *Entity) String() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.n.typ)
	b.WriteByte('<')
	if gid := e.GlobalID(); gid != "" {
		b.WriteString(gid)
	} else {
		b.WriteString(Ref{ID: e.n.id}.String())
	}
	b.WriteByte('>')
	if name := e.Name(); name != "" {
		fmt.Fprintf(&b, " %q", name)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
