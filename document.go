package bimgraph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/reoring/bimgraph/internal/telemetry"
	"github.com/reoring/bimgraph/schema"
)

// FromJSON rebuilds an entity graph from a document produced by ToJSON and
// returns the root entity. The graph is available through Entity.Graph.
func FromJSON(def *schema.Definition, data []byte, opts ...DecodeOpt) (*Entity, error) {
	tree, err := decodeBytes(data, lastOpt(opts))
	if err != nil {
		return nil, err
	}
	return FromDict(def, tree)
}

// FromJSONString is FromJSON over a string.
func FromJSONString(def *schema.Definition, s string, opts ...DecodeOpt) (*Entity, error) {
	return FromJSON(def, []byte(s), opts...)
}

// ReadJSON is FromJSON over a reader.
func ReadJSON(def *schema.Definition, r io.Reader, opts ...DecodeOpt) (*Entity, error) {
	tree, err := decodeReader(r, lastOpt(opts))
	if err != nil {
		return nil, err
	}
	return FromDict(def, tree)
}

// FromDict rebuilds an entity graph from a tree document (as produced by
// Entity.ToDict) and returns the root entity.
func FromDict(def *schema.Definition, tree any) (*Entity, error) {
	start := time.Now()
	d := newDecoder(def)
	root, err := d.decodeRoot(tree)
	telemetry.RecordDecode(context.Background(), "tree", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	return root, nil
}

// GraphFromJSON rebuilds a Graph from a whole-graph document (Graph.ToJSON).
func GraphFromJSON(def *schema.Definition, data []byte, opts ...DecodeOpt) (*Graph, error) {
	tree, err := decodeBytes(data, lastOpt(opts))
	if err != nil {
		return nil, err
	}
	return GraphFromDict(def, tree)
}

// ReadGraphJSON is GraphFromJSON over a reader.
func ReadGraphJSON(def *schema.Definition, r io.Reader, opts ...DecodeOpt) (*Graph, error) {
	tree, err := decodeReader(r, lastOpt(opts))
	if err != nil {
		return nil, err
	}
	return GraphFromDict(def, tree)
}

// GraphFromDict rebuilds a Graph from a whole-graph tree (Graph.ToDict).
func GraphFromDict(def *schema.Definition, tree any, opts ...LoadOpt) (*Graph, error) {
	start := time.Now()
	d := newDecoder(def, opts...)
	g, err := d.decodeGraph(tree)
	telemetry.RecordDecode(context.Background(), "tree", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// pendingRef is the placeholder left by the first pass for a reference token.
type pendingRef struct {
	token string
	path  PathRef
}

type decoder struct {
	g      *Graph
	tokens map[string]int64
	paths  map[int64]PathRef // node identity -> document path
	iss    Issues
}

func newDecoder(def *schema.Definition, opts ...LoadOpt) *decoder {
	return &decoder{g: NewGraph(def, opts...), tokens: make(map[string]int64), paths: make(map[int64]PathRef)}
}

func (d *decoder) malformed(p PathRef, detail string) {
	d.iss = AppendIssues(d.iss, IssueAt(p, CodeMalformedDocument, map[string]any{"detail": detail}))
}

func (d *decoder) decodeRoot(tree any) (*Entity, error) {
	p := RootPath()
	m, ok := tree.(map[string]any)
	if !ok || m[KeyTypeName] == nil {
		d.malformed(p, "root must be an entity node")
		return nil, d.iss
	}
	id := d.materialize(m, p)
	if err := d.finish(); err != nil {
		return nil, err
	}
	return d.g.wrap(d.g.nodes[id]), nil
}

func (d *decoder) decodeGraph(tree any) (*Graph, error) {
	p := RootPath()
	m, ok := tree.(map[string]any)
	if !ok {
		d.malformed(p, "graph document must be an object")
		return nil, d.iss
	}
	for k := range m {
		switch k {
		case KeySchema, KeyVersion, KeyEntities:
		default:
			d.malformed(p.Field(k), "unexpected key "+k)
		}
	}
	if name, ok := m[KeySchema].(string); ok && name != d.g.def.Name() {
		d.malformed(p.Field(KeySchema), fmt.Sprintf("document schema %s does not match %s", name, d.g.def.Name()))
	}
	list, ok := m[KeyEntities].([]any)
	if !ok {
		d.malformed(p.Field(KeyEntities), "entities must be a list")
		return nil, d.iss
	}
	for i, el := range list {
		ep := p.Field(KeyEntities).Index(i)
		nm, ok := el.(map[string]any)
		if !ok || nm[KeyTypeName] == nil {
			d.malformed(ep, "entities must hold entity nodes")
			continue
		}
		d.materialize(nm, ep)
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return d.g, nil
}

// materialize is the first pass: it creates a record under a fresh identity
// for the node and every node nested in it, registering identity tokens and
// leaving reference tokens as placeholders.
func (d *decoder) materialize(m map[string]any, p PathRef) int64 {
	g := d.g
	nd := &node{id: g.allocID(), attrs: make(map[string]any), attached: true}
	g.nodes[nd.id] = nd
	g.pos[nd.id] = len(g.order)
	g.order = append(g.order, nd.id)
	d.paths[nd.id] = p

	for k := range m {
		switch k {
		case KeyTypeName, KeyGlobalID, KeyID, KeyAttributes:
		default:
			d.malformed(p.Field(k), "unexpected key "+k)
		}
	}
	typ, ok := m[KeyTypeName].(string)
	if !ok || typ == "" {
		d.malformed(p.Field(KeyTypeName), "type_name must be a non-empty string")
	}
	nd.typ = typ

	if raw, present := m[KeyID]; present {
		tok, ok := raw.(string)
		if !ok || tok == "" {
			d.malformed(p.Field(KeyID), "id must be a non-empty string")
		} else {
			d.register(tok, nd.id, p.Field(KeyID))
		}
	}
	gid := ""
	if raw, present := m[KeyGlobalID]; present {
		s, ok := raw.(string)
		if !ok || s == "" {
			d.malformed(p.Field(KeyGlobalID), "global_id must be a non-empty string")
		} else {
			gid = s
			d.register(s, nd.id, p.Field(KeyGlobalID))
		}
	}

	ap := p.Field(KeyAttributes)
	if raw, present := m[KeyAttributes]; present && raw != nil {
		attrs, ok := raw.(map[string]any)
		if !ok {
			d.malformed(ap, "attributes must be an object")
		}
		for name, v := range attrs {
			nd.attrs[name] = d.value(v, ap.Field(name))
		}
	}

	if gid != "" && g.def.Has(typ) {
		gidAttr := g.def.GlobalIDAttribute()
		if _, declared := g.def.Attribute(typ, gidAttr); declared {
			switch cur, present := nd.attrs[gidAttr]; {
			case !present || cur == nil:
				nd.attrs[gidAttr] = gid
			case cur != gid:
				d.malformed(p.Field(KeyGlobalID), "global_id disagrees with attribute "+gidAttr)
			}
		}
	}
	return nd.id
}

func (d *decoder) register(tok string, id int64, p PathRef) {
	if _, dup := d.tokens[tok]; dup {
		d.iss = AppendIssues(d.iss, IssueAt(p, CodeDuplicateToken, map[string]any{"token": tok}))
		return
	}
	d.tokens[tok] = id
}

func (d *decoder) value(v any, p PathRef) any {
	switch x := v.(type) {
	case map[string]any:
		if raw, ok := x[KeyRef]; ok {
			tok, isStr := raw.(string)
			if !isStr || len(x) != 1 {
				d.malformed(p, `reference must be {"$ref": "<token>"}`)
				return nil
			}
			return &pendingRef{token: tok, path: p}
		}
		if _, ok := x[KeyTypeName]; ok {
			return Ref{ID: d.materialize(x, p)}
		}
		d.malformed(p, "object values must be entity nodes or references")
		return nil
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = d.value(el, p.Index(i))
		}
		return out
	}
	return v
}

// finish is the second pass: it resolves every placeholder against the
// complete token table, then coerces and validates every record.
func (d *decoder) finish() error {
	g := d.g
	for _, id := range g.order {
		nd := g.nodes[id]
		for name, v := range nd.attrs {
			nd.attrs[name] = d.resolve(v)
		}
	}
	if len(d.iss) > 0 {
		return d.iss
	}

	v := validator{def: g.def, resolve: g.typeOf}
	var iss Issues
	for _, id := range g.order {
		nd := g.nodes[id]
		nd.attrs = CoerceData(g.def, nd.typ, nd.attrs)
		iss = append(iss, v.record(nd.typ, nd.attrs, d.paths[id].Field(KeyAttributes), 0)...)
	}
	if len(iss) > 0 {
		g.logger.Debug("document failed validation", slog.Int("issues", len(iss)))
		return iss
	}
	for _, id := range g.order {
		g.index(g.nodes[id])
	}
	return nil
}

func (d *decoder) resolve(v any) any {
	switch x := v.(type) {
	case *pendingRef:
		id, ok := d.tokens[x.token]
		if !ok {
			d.iss = AppendIssues(d.iss, IssueAt(x.path, CodeUnresolvedRef, map[string]any{"token": x.token}))
			return nil
		}
		return Ref{ID: id}
	case []any:
		for i, el := range x {
			x[i] = d.resolve(el)
		}
	}
	return v
}
