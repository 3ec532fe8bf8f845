package bimgraph

import "maps"

// CopyOpt configures Entity.Copy. When several are passed the last one wins.
type CopyOpt struct {
	// As casts the copied root to another type: attributes the target does
	// not declare are dropped and the result must validate against it.
	As string
	// GlobalIDs, when set, supplies a fresh global id for every copied entity
	// whose type declares the global-id attribute.
	GlobalIDs func() string
}

// Copy returns a deep copy of e following forward attributes. Shared and
// cyclic references are reproduced in the copy. Inverse attributes are never
// followed; they are computed and refer to originals until the copy is
// inserted. The copy and every entity copied with it are detached until
// Graph.Insert. Copy allocates identities in e's graph, so it is a write and
// fails with ErrFrozen on a frozen graph.
func (e *Entity) Copy(opts ...CopyOpt) (*Entity, error) {
	opt := lastOpt(opts)
	g := e.g
	if err := g.mutable(); err != nil {
		return nil, err
	}
	if opt.As != "" && !g.def.Has(opt.As) {
		return nil, notFound("type", opt.As)
	}

	c := copier{g: g, opt: opt, memo: make(map[int64]*Entity), firstID: g.nextID}
	root, err := c.entity(e)
	if err != nil {
		c.discard()
		return nil, err
	}
	if opt.As == "" || opt.As == e.n.typ {
		return root, nil
	}

	attrs := maps.Clone(root.n.attrs)
	for name := range attrs {
		if a, ok := g.def.Attribute(opt.As, name); !ok || a.IsInverse() {
			delete(attrs, name)
		}
	}
	if iss := (validator{def: g.def, resolve: g.typeOf}).record(opt.As, attrs, RootPath(), 0); len(iss) > 0 {
		c.discard()
		return nil, &TypeConformanceError{From: e.n.typ, To: opt.As, Issues: iss}
	}
	root.n.typ = opt.As
	root.n.attrs = attrs
	return root, nil
}

type copier struct {
	g       *Graph
	opt     CopyOpt
	memo    map[int64]*Entity
	firstID int64
}

// discard forgets every wrapper made by a failed copy and returns its
// identities. Nothing else allocates while a copy runs.
func (c *copier) discard() {
	for _, cp := range c.memo {
		delete(c.g.cache, cp.n.id)
	}
	c.g.nextID = c.firstID
}

func (c *copier) entity(src *Entity) (*Entity, error) {
	if cp, ok := c.memo[src.n.id]; ok {
		return cp, nil
	}
	nd := &node{id: c.g.allocID(), typ: src.n.typ, attrs: make(map[string]any, len(src.n.attrs))}
	cp := c.g.wrap(nd)
	c.memo[src.n.id] = cp
	for name, raw := range src.n.attrs {
		a, ok := c.g.def.Attribute(src.n.typ, name)
		if ok && a.IsInverse() {
			continue
		}
		v, err := c.value(raw)
		if err != nil {
			return nil, err
		}
		nd.attrs[name] = v
	}
	gidAttr := c.g.def.GlobalIDAttribute()
	if _, declared := c.g.def.Attribute(nd.typ, gidAttr); declared && c.opt.GlobalIDs != nil {
		nd.attrs[gidAttr] = c.opt.GlobalIDs()
	}
	return cp, nil
}

func (c *copier) value(v any) (any, error) {
	switch x := v.(type) {
	case Ref:
		target, _, err := c.g.resolve(x)
		if err != nil {
			return nil, err
		}
		cp, err := c.entity(target.(*Entity))
		if err != nil {
			return nil, err
		}
		return cp, nil
	case *Entity:
		cp, err := c.entity(x)
		if err != nil {
			return nil, err
		}
		return cp, nil
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			cv, err := c.value(el)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}
	return v, nil
}
