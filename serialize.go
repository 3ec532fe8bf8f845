package bimgraph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	json "github.com/goccy/go-json"

	"github.com/reoring/bimgraph/codec"
	"github.com/reoring/bimgraph/internal/telemetry"
)

// Document keys.
const (
	KeyTypeName   = "type_name"
	KeyGlobalID   = "global_id"
	KeyID         = "id"
	KeyAttributes = "attributes"
	KeyRef        = "$ref"
	KeySchema     = "schema"
	KeyVersion    = "version"
	KeyEntities   = "entities"
)

// DictOpt configures tree serialization. When several are passed the last
// one wins.
type DictOpt struct {
	// Include keeps only the listed attributes on every node.
	Include []string
	// Ignore drops the listed attributes on every node. Setting both Include
	// and Ignore fails with ErrConfigConflict.
	Ignore []string
	// Shallow emits entity-valued attributes as {"$ref": token} instead of
	// expanding them.
	Shallow bool
}

func (o DictOpt) check() error {
	if len(o.Include) > 0 && len(o.Ignore) > 0 {
		return fmt.Errorf("%w: include and ignore are mutually exclusive", ErrConfigConflict)
	}
	return nil
}

func (o DictOpt) keep(name string) bool {
	if len(o.Include) > 0 {
		return slices.Contains(o.Include, name)
	}
	return !slices.Contains(o.Ignore, name)
}

// JSONOpt configures JSON serialization.
type JSONOpt struct {
	DictOpt
	Pretty bool
}

// Token returns the identity token used in documents: the global id when the
// entity has one, "#<id>" otherwise.
func (e *Entity) Token() string {
	if gid := e.GlobalID(); gid != "" {
		return gid
	}
	return Ref{ID: e.n.id}.String()
}

type dictWriter struct {
	opt     DictOpt
	visited map[int64]bool
}

// ToDict converts e and, unless Shallow, everything reachable through forward
// attributes into a tree document. An entity already emitted during the call
// is written as a reference token, which breaks cycles.
func (e *Entity) ToDict(opts ...DictOpt) (map[string]any, error) {
	opt := lastOpt(opts)
	if err := opt.check(); err != nil {
		return nil, err
	}
	start := time.Now()
	w := &dictWriter{opt: opt, visited: make(map[int64]bool)}
	out, err := w.node(e)
	if err == nil {
		telemetry.RecordEncode(context.Background(), "tree", time.Since(start))
	}
	return out, err
}

func (w *dictWriter) node(e *Entity) (map[string]any, error) {
	w.visited[e.n.id] = true
	attrs := make(map[string]any)
	for _, name := range e.g.def.AttributeNames(e.n.typ) {
		a, _ := e.g.def.Attribute(e.n.typ, name)
		if a.IsInverse() || !w.opt.keep(name) {
			continue
		}
		raw, ok := e.n.attrs[name]
		if !ok || raw == nil {
			continue
		}
		v, err := w.value(e.g, raw)
		if err != nil {
			return nil, err
		}
		attrs[name] = v
	}
	out := map[string]any{
		KeyTypeName:   e.n.typ,
		KeyID:         Ref{ID: e.n.id}.String(),
		KeyAttributes: attrs,
	}
	if gid := e.GlobalID(); gid != "" {
		out[KeyGlobalID] = gid
	}
	return out, nil
}

func (w *dictWriter) value(g *Graph, v any) (any, error) {
	switch x := v.(type) {
	case Ref, *Entity:
		r, _, err := g.resolve(x)
		if err != nil {
			return nil, err
		}
		ref := r.(*Entity)
		if w.opt.Shallow || w.visited[ref.n.id] {
			return map[string]any{KeyRef: ref.Token()}, nil
		}
		return w.node(ref)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			ev, err := w.value(g, el)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	}
	return v, nil
}

// ToDict emits the whole graph: {"schema", "version", "entities": [...]} with
// entities in graph order. Entities already expanded inside an earlier entry
// are not repeated at the top level.
func (g *Graph) ToDict(opts ...DictOpt) (map[string]any, error) {
	opt := lastOpt(opts)
	if err := opt.check(); err != nil {
		return nil, err
	}
	start := time.Now()
	w := &dictWriter{opt: opt, visited: make(map[int64]bool)}
	entities := make([]any, 0, len(g.order))
	for _, id := range g.order {
		if w.visited[id] {
			continue
		}
		n, err := w.node(g.wrap(g.nodes[id]))
		if err != nil {
			return nil, err
		}
		entities = append(entities, n)
	}
	telemetry.RecordEncode(context.Background(), "tree", time.Since(start))
	return map[string]any{
		KeySchema:   g.def.Name(),
		KeyVersion:  g.def.Version(),
		KeyEntities: entities,
	}, nil
}

func marshalJSON(tree any, pretty bool) ([]byte, error) {
	start := time.Now()
	var (
		b   []byte
		err error
	)
	tree = codec.JSONTree(tree)
	if pretty {
		b, err = json.MarshalIndent(tree, "", "  ")
	} else {
		b, err = json.Marshal(tree)
	}
	if err == nil {
		telemetry.RecordEncode(context.Background(), "json", time.Since(start))
	}
	return b, err
}

// ToJSON serializes ToDict output. Pretty only changes indentation.
func (e *Entity) ToJSON(opts ...JSONOpt) ([]byte, error) {
	opt := lastOpt(opts)
	tree, err := e.ToDict(opt.DictOpt)
	if err != nil {
		return nil, err
	}
	return marshalJSON(tree, opt.Pretty)
}

// ToJSONString is ToJSON returning a string.
func (e *Entity) ToJSONString(opts ...JSONOpt) (string, error) {
	b, err := e.ToJSON(opts...)
	return string(b), err
}

// WriteJSON writes ToJSON output followed by a newline.
func (e *Entity) WriteJSON(w io.Writer, opts ...JSONOpt) error {
	b, err := e.ToJSON(opts...)
	if err != nil {
		return err
	}
	return writeLine(w, b)
}

// ToJSON serializes the whole-graph document.
func (g *Graph) ToJSON(opts ...JSONOpt) ([]byte, error) {
	opt := lastOpt(opts)
	tree, err := g.ToDict(opt.DictOpt)
	if err != nil {
		return nil, err
	}
	return marshalJSON(tree, opt.Pretty)
}

// WriteJSON writes the whole-graph document followed by a newline.
func (g *Graph) WriteJSON(w io.Writer, opts ...JSONOpt) error {
	b, err := g.ToJSON(opts...)
	if err != nil {
		return err
	}
	return writeLine(w, b)
}

func writeLine(w io.Writer, b []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(b) + 1)
	buf.Write(b)
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
