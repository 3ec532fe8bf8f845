package bimgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reoring/bimgraph/internal/telemetry"
	"github.com/reoring/bimgraph/mesh"
	"github.com/reoring/bimgraph/schema"
)

// contextCheckInterval is how many records Load consumes between cancellation
// checks.
const contextCheckInterval = 1000

// LoadOpt configures Load and NewGraph. When several are passed the last one
// wins.
type LoadOpt struct {
	// Logger receives load diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Validate checks every record against the schema (and every reference
	// against its target type) before the graph is returned.
	Validate bool
}

// node is one raw record owned by a Graph.
type node struct {
	id       int64
	typ      string
	attrs    map[string]any
	attached bool
}

// Graph is the arena that owns every record of one model: raw records keyed
// by identity, the canonical Entity wrapper for each identity, and the flat
// indices built at load time.
//
// # Thread Safety
//
// Graph has no internal locking. Load, Create, Insert and Set must run on a
// single goroutine. After Freeze the graph is immutable and may be read from
// any number of goroutines.
type Graph struct {
	def    *schema.Definition
	logger *slog.Logger

	nodes map[int64]*node   // attached records
	cache map[int64]*Entity // canonical wrappers, attached and detached
	order []int64
	pos   map[int64]int

	byType     map[string][]int64
	byName     map[string][]int64
	byGlobalID map[string][]int64
	collisions map[int64]int // identities seen more than once at load

	nextID   int64
	rev      uint64
	rindex   *reverseIndex
	frozen   bool
	geometry map[int64]mesh.Mesh
}

// NewGraph returns an empty graph over def.
func NewGraph(def *schema.Definition, opts ...LoadOpt) *Graph {
	opt := lastOpt(opts)
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		def:        def,
		logger:     logger,
		nodes:      make(map[int64]*node),
		cache:      make(map[int64]*Entity),
		pos:        make(map[int64]int),
		byType:     make(map[string][]int64),
		byName:     make(map[string][]int64),
		byGlobalID: make(map[string][]int64),
		collisions: make(map[int64]int),
		nextID:     1,
	}
}

// Load drains src into a new Graph. The first record wins when an identity
// repeats; later lookups of that identity report AmbiguousLookup.
func Load(ctx context.Context, def *schema.Definition, src RecordSource, opts ...LoadOpt) (g *Graph, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "bimgraph.Load",
		trace.WithAttributes(attribute.String("schema", def.Name())),
	)
	n := 0
	defer func() {
		span.SetAttributes(attribute.Int("records", n))
		telemetry.RecordLoad(ctx, time.Since(start), n, err == nil)
		telemetry.EndSpan(span, err)
	}()

	opt := lastOpt(opts)
	g = NewGraph(def, opt)
	var iss Issues
	var maxID int64
	for {
		if n%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, rerr := src.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
		n++
		if rec.ID <= 0 {
			return nil, singleIssueAt(RootPath().Index(n-1), CodeMalformedDocument,
				map[string]any{"detail": fmt.Sprintf("record %d has no positive identity", n)})
		}
		if !def.Has(rec.Type) {
			iss = AppendIssues(iss, IssueAt(recordPath(rec.ID), CodeUnknownType, map[string]any{"type": rec.Type}))
			continue
		}
		if _, dup := g.nodes[rec.ID]; dup {
			g.collisions[rec.ID]++
			g.logger.Warn("duplicate record identity",
				slog.Int64("id", rec.ID),
				slog.String("type", rec.Type),
			)
			continue
		}
		maxID = max(maxID, rec.ID)
		nd := &node{id: rec.ID, typ: rec.Type, attrs: CoerceData(def, rec.Type, rec.Attributes), attached: true}
		g.nodes[nd.id] = nd
		g.pos[nd.id] = len(g.order)
		g.order = append(g.order, nd.id)
	}
	if len(iss) > 0 {
		return nil, iss
	}
	g.nextID = maxID + 1
	if _, iss := g.flattenNested(0); len(iss) > 0 {
		return nil, iss
	}

	if opt.Validate {
		v := validator{def: def, resolve: g.typeOf}
		for _, id := range g.order {
			nd := g.nodes[id]
			iss = append(iss, v.record(nd.typ, nd.attrs, recordPath(id), 0)...)
		}
		if len(iss) > 0 {
			g.logger.Warn("graph validation failed", slog.Int("issues", len(iss)))
			return nil, iss
		}
	}
	for _, id := range g.order {
		g.index(g.nodes[id])
	}
	g.logger.Debug("graph loaded",
		slog.String("schema", def.Name()),
		slog.Int("records", n),
		slog.Int("entities", len(g.order)),
		slog.Int("collisions", len(g.collisions)),
	)
	return g, nil
}

func recordPath(id int64) PathRef { return RootPath().Field(Ref{ID: id}.String()) }

func singleIssueAt(p PathRef, code string, params map[string]any) Issues {
	return AppendIssues(nil, IssueAt(p, code, params))
}

// flattenNested turns inline Record values into records of their own,
// replacing them with references. New records are appended to the load order
// and returned; the caller indexes them. Records of unknown type are reported
// and left in place.
func (g *Graph) flattenNested(from int) ([]*node, Issues) {
	f := flattener{g: g}
	for i := from; i < len(g.order); i++ {
		nd := g.nodes[g.order[i]]
		for _, k := range sortedKeys(nd.attrs) {
			nd.attrs[k] = f.value(nd.attrs[k], recordPath(nd.id).Field(k))
		}
	}
	return f.created, f.iss
}

// flattenAttrs flattens the nested records of attrs, which do not belong to a
// stored node yet, and then those of the records it created.
func (g *Graph) flattenAttrs(attrs map[string]any) ([]*node, Issues) {
	start := len(g.order)
	f := flattener{g: g}
	for _, k := range sortedKeys(attrs) {
		attrs[k] = f.value(attrs[k], RootPath().Field(k))
	}
	created, iss := g.flattenNested(start)
	return append(f.created, created...), append(f.iss, iss...)
}

type flattener struct {
	g       *Graph
	created []*node
	iss     Issues
}

func (f *flattener) value(v any, p PathRef) any {
	switch x := v.(type) {
	case Record:
		if !f.g.def.Has(x.Type) {
			f.iss = AppendIssues(f.iss, IssueAt(p, CodeUnknownType, map[string]any{"type": x.Type}))
			return v
		}
		g := f.g
		nd := &node{id: g.allocID(), typ: x.Type, attrs: CoerceData(g.def, x.Type, x.Attributes), attached: true}
		g.nodes[nd.id] = nd
		g.pos[nd.id] = len(g.order)
		g.order = append(g.order, nd.id)
		f.created = append(f.created, nd)
		return Ref{ID: nd.id}
	case *Record:
		if x == nil {
			return nil
		}
		return f.value(*x, p)
	case []any:
		for i, e := range x {
			x[i] = f.value(e, p.Index(i))
		}
	}
	return v
}

func hasRecord(v any) bool {
	switch x := v.(type) {
	case Record:
		return true
	case *Record:
		return x != nil
	case []any:
		return slices.ContainsFunc(x, hasRecord)
	}
	return false
}

// Definition returns the schema the graph is checked against.
func (g *Graph) Definition() *schema.Definition { return g.def }

// Logger returns the graph logger.
func (g *Graph) Logger() *slog.Logger { return g.logger }

// Len returns the number of attached entities.
func (g *Graph) Len() int { return len(g.order) }

func (g *Graph) allocID() int64 {
	id := g.nextID
	g.nextID++
	return id
}

func (g *Graph) typeOf(r Ref) (string, bool) {
	nd, ok := g.nodes[r.ID]
	if !ok {
		return "", false
	}
	return nd.typ, true
}

// wrap returns the canonical Entity for nd.
func (g *Graph) wrap(nd *node) *Entity {
	if e, ok := g.cache[nd.id]; ok {
		return e
	}
	e := &Entity{g: g, n: nd}
	g.cache[nd.id] = e
	return e
}

func (g *Graph) stringAttr(nd *node, name string) string {
	s, _ := nd.attrs[name].(string)
	return s
}

func (g *Graph) index(nd *node) {
	g.byType[nd.typ] = append(g.byType[nd.typ], nd.id)
	if name := g.stringAttr(nd, g.def.NameAttribute()); name != "" {
		g.byName[name] = append(g.byName[name], nd.id)
	}
	if gid := g.stringAttr(nd, g.def.GlobalIDAttribute()); gid != "" {
		g.byGlobalID[gid] = append(g.byGlobalID[gid], nd.id)
	}
}

func removeID(m map[string][]int64, key string, id int64) {
	ids := slices.DeleteFunc(m[key], func(x int64) bool { return x == id })
	if len(ids) == 0 {
		delete(m, key)
		return
	}
	m[key] = ids
}

func (g *Graph) mutable() error {
	if g.frozen {
		return ErrFrozen
	}
	return nil
}

func (g *Graph) touch() { g.rev++ }

// Create validates attrs against typeName and adds a new entity with a fresh
// identity. Entity values must be attached to g.
func (g *Graph) Create(typeName string, attrs map[string]any) (*Entity, error) {
	if err := g.mutable(); err != nil {
		return nil, err
	}
	data := CoerceData(g.def, typeName, attrs)
	v := validator{def: g.def, resolve: g.typeOf}
	if iss := v.record(typeName, data, RootPath(), 0); len(iss) > 0 {
		return nil, iss
	}
	if err := g.checkValues(data, true); err != nil {
		return nil, err
	}
	if gid := stringValue(data[g.def.GlobalIDAttribute()]); gid != "" && len(g.byGlobalID[gid]) > 0 {
		return nil, fmt.Errorf("%w: global id %q", ErrDuplicateIdentity, gid)
	}
	nd := &node{id: g.allocID(), typ: typeName, attrs: data}
	g.attach(nd)
	created, iss := g.flattenNested(g.pos[nd.id])
	for _, c := range created {
		g.index(c)
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return g.wrap(nd), nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// checkValues rejects entity values owned by another graph and, when
// attachedOnly is set, detached entities.
func (g *Graph) checkValues(attrs map[string]any, attachedOnly bool) error {
	var err error
	for _, v := range attrs {
		forEachEntity(v, func(e *Entity) {
			switch {
			case err != nil:
			case e.g != g:
				err = fmt.Errorf("%w: %s belongs to another graph", ErrNotFound, e)
			case attachedOnly && !e.n.attached:
				err = fmt.Errorf("%w: %s is detached; insert it first", ErrNotFound, e)
			}
		})
	}
	return err
}

func forEachEntity(v any, fn func(*Entity)) {
	switch x := v.(type) {
	case *Entity:
		if x != nil {
			fn(x)
		}
	case []any:
		for _, e := range x {
			forEachEntity(e, fn)
		}
	}
}

func (g *Graph) attach(nd *node) {
	nd.attached = true
	g.nodes[nd.id] = nd
	g.pos[nd.id] = len(g.order)
	g.order = append(g.order, nd.id)
	g.index(nd)
	g.touch()
}

// Insert attaches a detached entity (typically a Copy) and every detached
// entity reachable from it through forward attributes. Attaching fails with
// ErrDuplicateIdentity when a global id is already in use.
func (g *Graph) Insert(e *Entity) error {
	if err := g.mutable(); err != nil {
		return err
	}
	if e.g != g {
		return fmt.Errorf("%w: %s belongs to another graph", ErrNotFound, e)
	}
	if e.n.attached {
		return nil
	}
	var pending []*node
	seen := make(map[int64]bool)
	var walk func(x *Entity) error
	walk = func(x *Entity) error {
		if x.n.attached || seen[x.n.id] {
			return nil
		}
		if x.g != g {
			return fmt.Errorf("%w: %s belongs to another graph", ErrNotFound, x)
		}
		seen[x.n.id] = true
		pending = append(pending, x.n)
		var err error
		for _, name := range g.def.AttributeNames(x.n.typ) {
			forEachEntity(x.n.attrs[name], func(y *Entity) {
				if err == nil {
					err = walk(y)
				}
			})
		}
		return err
	}
	if err := walk(e); err != nil {
		return err
	}
	gids := make(map[string]bool)
	for _, nd := range pending {
		gid := g.stringAttr(nd, g.def.GlobalIDAttribute())
		if gid == "" {
			continue
		}
		if gids[gid] || len(g.byGlobalID[gid]) > 0 {
			return fmt.Errorf("%w: global id %q", ErrDuplicateIdentity, gid)
		}
		gids[gid] = true
	}
	for _, nd := range pending {
		g.attach(nd)
	}
	g.logger.Debug("entities inserted", slog.Int("count", len(pending)), slog.String("root", e.String()))
	return nil
}

// Freeze resolves every reference, wraps every entity and builds the inverse
// index so that later reads never write. Mutations afterwards fail with
// ErrFrozen.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	for _, id := range g.order {
		nd := g.nodes[id]
		e := g.wrap(nd)
		for name := range nd.attrs {
			_, _ = e.Get(name)
		}
	}
	g.reverse()
	g.frozen = true
}

// Frozen reports whether Freeze was called.
func (g *Graph) Frozen() bool { return g.frozen }

// SetGeometry attaches a tessellated payload to e.
func (g *Graph) SetGeometry(e *Entity, m mesh.Mesh) error {
	if err := g.mutable(); err != nil {
		return err
	}
	if e.g != g {
		return fmt.Errorf("%w: %s belongs to another graph", ErrNotFound, e)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if g.geometry == nil {
		g.geometry = make(map[int64]mesh.Mesh)
	}
	g.geometry[e.n.id] = m
	return nil
}
