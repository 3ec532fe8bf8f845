package bimgraph

import (
	"slices"
	"strconv"
)

// Entity returns the canonical wrapper for an attached identity.
func (g *Graph) Entity(id int64) (*Entity, bool) {
	nd, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return g.wrap(nd), true
}

func (g *Graph) wrapAll(ids []int64) []*Entity {
	out := make([]*Entity, len(ids))
	for i, id := range ids {
		out[i] = g.wrap(g.nodes[id])
	}
	return out
}

// GetAllEntities returns every attached entity in load order, followed by
// created and inserted ones.
func (g *Graph) GetAllEntities() []*Entity { return g.wrapAll(g.order) }

// GetEntitiesByType returns the entities whose type is typeName or one of its
// subtypes, in load order. An unknown type yields nothing.
func (g *Graph) GetEntitiesByType(typeName string) []*Entity {
	if !g.def.Has(typeName) {
		return nil
	}
	var ids []int64
	for _, t := range g.def.Subtypes(typeName) {
		ids = append(ids, g.byType[t]...)
	}
	slices.SortFunc(ids, func(a, b int64) int { return g.pos[a] - g.pos[b] })
	return g.wrapAll(ids)
}

// GetEntitiesByExactType returns the entities whose type is typeName itself,
// excluding subtypes, in load order.
func (g *Graph) GetEntitiesByExactType(typeName string) []*Entity {
	ids := slices.Clone(g.byType[typeName])
	slices.SortFunc(ids, func(a, b int64) int { return g.pos[a] - g.pos[b] })
	return g.wrapAll(ids)
}

// GetEntitiesByName returns the entities whose name attribute equals name
// exactly.
func (g *Graph) GetEntitiesByName(name string) []*Entity {
	return g.wrapAll(g.byName[name])
}

// GetEntityByGlobalID returns the unique entity carrying gid. Internal "#<n>"
// tokens are looked up as identities.
func (g *Graph) GetEntityByGlobalID(gid string) (*Entity, error) {
	ids := g.byGlobalID[gid]
	switch {
	case len(ids) == 1:
		return g.wrap(g.nodes[ids[0]]), nil
	case len(ids) > 1:
		return nil, &AmbiguousLookupError{Key: gid, Count: len(ids)}
	}
	if r, ok := ParseRef(gid); ok {
		return g.GetEntityByID(r.ID)
	}
	return nil, notFound("entity", gid)
}

// GetEntityByID returns the entity with the internal identity id. An identity
// that appeared more than once in the loaded record stream is ambiguous.
func (g *Graph) GetEntityByID(id int64) (*Entity, error) {
	key := Ref{ID: id}.String()
	if n := g.collisions[id]; n > 0 {
		return nil, &AmbiguousLookupError{Key: key, Count: n + 1}
	}
	e, ok := g.Entity(id)
	if !ok {
		return nil, notFound("entity", strconv.FormatInt(id, 10))
	}
	return e, nil
}
