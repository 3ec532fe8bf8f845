package bimgraph

import "github.com/reoring/bimgraph/schema"

// reverseIndex maps forward reference attributes back to their sources:
// attribute name -> target identity -> source identities in graph order. It
// is rebuilt lazily whenever the graph revision changes.
type reverseIndex struct {
	rev   uint64
	edges map[string]map[int64][]int64
}

func (ri *reverseIndex) sources(attr string, target int64) []int64 {
	return ri.edges[attr][target]
}

func (g *Graph) reverse() *reverseIndex {
	if g.rindex != nil && g.rindex.rev == g.rev {
		return g.rindex
	}
	ri := &reverseIndex{rev: g.rev, edges: make(map[string]map[int64][]int64)}
	for _, id := range g.order {
		nd := g.nodes[id]
		for name, val := range nd.attrs {
			a, ok := g.def.Attribute(nd.typ, name)
			if !ok || a.IsInverse() || (a.Type.Kind != schema.KindRef && a.Type.Kind != schema.KindAny) {
				continue
			}
			byTarget := ri.edges[name]
			if byTarget == nil {
				byTarget = make(map[int64][]int64)
				ri.edges[name] = byTarget
			}
			forEachTarget(val, func(target int64) {
				srcs := byTarget[target]
				if n := len(srcs); n > 0 && srcs[n-1] == id {
					return
				}
				byTarget[target] = append(srcs, id)
			})
		}
	}
	g.rindex = ri
	return ri
}

// forEachTarget calls fn with the identity of every reference in v.
func forEachTarget(v any, fn func(int64)) {
	switch x := v.(type) {
	case Ref:
		fn(x.ID)
	case *Entity:
		if x != nil {
			fn(x.n.id)
		}
	case []any:
		for _, el := range x {
			forEachTarget(el, fn)
		}
	}
}
