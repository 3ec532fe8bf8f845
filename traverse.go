package bimgraph

import (
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
)

// Parent returns the container of e under the definition's containment rules:
// the Parent attribute of the first relation, in rule order, whose Children
// attribute references e. It returns nil when e has no container.
func (e *Entity) Parent() (*Entity, error) {
	ri := e.g.reverse()
	for _, rule := range e.g.def.Containment() {
		for _, id := range ri.sources(rule.Children, e.n.id) {
			rel := e.g.nodes[id]
			if !e.g.def.IsA(rel.typ, rule.Relation) {
				continue
			}
			p, err := e.g.wrap(rel).GetEntity(rule.Parent)
			if err != nil {
				return nil, err
			}
			if p != nil {
				return p, nil
			}
		}
	}
	return nil, nil
}

// Children returns the entities directly contained in e, concatenated over
// the containment rules in order.
func (e *Entity) Children() ([]*Entity, error) {
	ri := e.g.reverse()
	var out []*Entity
	for _, rule := range e.g.def.Containment() {
		for _, id := range ri.sources(rule.Parent, e.n.id) {
			rel := e.g.nodes[id]
			if !e.g.def.IsA(rel.typ, rule.Relation) {
				continue
			}
			kids, err := e.g.wrap(rel).GetEntities(rule.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, kids...)
		}
	}
	return out, nil
}

// TraverseAncestors yields the containers of e from the immediate parent up
// to the root. When an entity comes back the sequence ends with a
// *CyclicHierarchyError.
func (e *Entity) TraverseAncestors() iter.Seq2[*Entity, error] {
	return func(yield func(*Entity, error) bool) {
		seen := map[int64]bool{e.n.id: true}
		cur := e
		for depth := 1; ; depth++ {
			p, err := cur.Parent()
			if err != nil {
				yield(nil, err)
				return
			}
			if p == nil {
				return
			}
			if seen[p.n.id] {
				yield(nil, &CyclicHierarchyError{Entity: p.String(), Depth: depth})
				return
			}
			seen[p.n.id] = true
			if !yield(p, nil) {
				return
			}
			cur = p
		}
	}
}

// Traverse yields the descendants of e depth first, each child followed by
// its own subtree. An entity reached through two containers is yielded once;
// an entity that contains one of its own ancestors ends the sequence with a
// *CyclicHierarchyError.
func (e *Entity) Traverse() iter.Seq2[*Entity, error] {
	return func(yield func(*Entity, error) bool) {
		w := walker{onPath: map[int64]bool{e.n.id: true}, done: map[int64]bool{e.n.id: true}}
		w.descend(e, 1, yield)
	}
}

type walker struct {
	onPath map[int64]bool
	done   map[int64]bool
}

// descend reports false once the walk has to stop.
func (w *walker) descend(e *Entity, depth int, yield func(*Entity, error) bool) bool {
	kids, err := e.Children()
	if err != nil {
		yield(nil, err)
		return false
	}
	for _, c := range kids {
		if w.onPath[c.n.id] {
			yield(nil, &CyclicHierarchyError{Entity: c.String(), Depth: depth})
			return false
		}
		if w.done[c.n.id] {
			continue
		}
		w.done[c.n.id] = true
		if !yield(c, nil) {
			return false
		}
		w.onPath[c.n.id] = true
		ok := w.descend(c, depth+1, yield)
		delete(w.onPath, c.n.id)
		if !ok {
			return false
		}
	}
	return true
}

// TraverseBranch yields the spatial branch through e: its ancestors from the
// root down, e itself, then its descendants.
func (e *Entity) TraverseBranch() iter.Seq2[*Entity, error] {
	return func(yield func(*Entity, error) bool) {
		var up []*Entity
		for a, err := range e.TraverseAncestors() {
			if err != nil {
				yield(nil, err)
				return
			}
			up = append(up, a)
		}
		slices.Reverse(up)
		for _, a := range up {
			if !yield(a, nil) {
				return
			}
		}
		if !yield(e, nil) {
			return
		}
		for d, err := range e.Traverse() {
			if !yield(d, err) || err != nil {
				return
			}
		}
	}
}

// Descendants collects Traverse.
func (e *Entity) Descendants() ([]*Entity, error) {
	var out []*Entity
	for d, err := range e.Traverse() {
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ChildrenByType filters Children (or Descendants when recursive) by IsA.
func (e *Entity) ChildrenByType(typeName string, recursive bool) ([]*Entity, error) {
	var (
		all []*Entity
		err error
	)
	if recursive {
		all, err = e.Descendants()
	} else {
		all, err = e.Children()
	}
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(x *Entity) bool { return !x.IsA(typeName) }), nil
}

// PrintSpatialHierarchy writes e and its descendants, one per line, indented
// with "----" per level. Descent stops below maxDepth; a negative maxDepth
// prints the whole tree. An entity that reappears on its own path fails with
// *CyclicHierarchyError.
func (e *Entity) PrintSpatialHierarchy(w io.Writer, maxDepth int) error {
	onPath := make(map[int64]bool)
	var visit func(x *Entity, depth int) error
	visit = func(x *Entity, depth int) error {
		if onPath[x.n.id] {
			return &CyclicHierarchyError{Entity: x.String(), Depth: depth}
		}
		line := x.String()
		if depth > 0 {
			line = strings.Repeat("----", depth) + " " + line
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if maxDepth >= 0 && depth >= maxDepth {
			return nil
		}
		kids, err := x.Children()
		if err != nil {
			return err
		}
		onPath[x.n.id] = true
		defer delete(onPath, x.n.id)
		for _, c := range kids {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(e, 0)
}
