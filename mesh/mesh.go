// Package mesh holds the numeric geometric payload attached to entities
// (tessellated boundary representations) and its tolerance-aware content
// digest.
package mesh

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidPayload is returned for non-finite coordinates, malformed flat
// buffers and out-of-range indices.
var ErrInvalidPayload = errors.New("invalid payload")

// Mesh is an indexed triangle mesh. Edges and faces index into Vertices.
type Mesh struct {
	Vertices [][3]float64 `json:"vertices" yaml:"vertices" msgpack:"vertices"`
	Edges    [][2]int     `json:"edges,omitempty" yaml:"edges,omitempty" msgpack:"edges,omitempty"`
	Faces    [][3]int     `json:"faces,omitempty" yaml:"faces,omitempty" msgpack:"faces,omitempty"`
}

// FromFlat reshapes flat buffers (x0 y0 z0 x1 ..., a0 b0 ..., i0 j0 k0 ...)
// into a Mesh.
func FromFlat(verts []float64, edges []int, faces []int) (Mesh, error) {
	if len(verts)%3 != 0 {
		return Mesh{}, fmt.Errorf("%w: %d vertex coordinates is not a multiple of 3", ErrInvalidPayload, len(verts))
	}
	if len(edges)%2 != 0 {
		return Mesh{}, fmt.Errorf("%w: %d edge indices is not a multiple of 2", ErrInvalidPayload, len(edges))
	}
	if len(faces)%3 != 0 {
		return Mesh{}, fmt.Errorf("%w: %d face indices is not a multiple of 3", ErrInvalidPayload, len(faces))
	}
	var m Mesh
	for i := 0; i < len(verts); i += 3 {
		m.Vertices = append(m.Vertices, [3]float64{verts[i], verts[i+1], verts[i+2]})
	}
	for i := 0; i < len(edges); i += 2 {
		m.Edges = append(m.Edges, [2]int{edges[i], edges[i+1]})
	}
	for i := 0; i < len(faces); i += 3 {
		m.Faces = append(m.Faces, [3]int{faces[i], faces[i+1], faces[i+2]})
	}
	return m, m.Validate()
}

// Validate checks that every coordinate is finite and every index is in
// range.
func (m Mesh) Validate() error {
	for i, v := range m.Vertices {
		for axis, c := range v {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w: vertex %d axis %d is %v", ErrInvalidPayload, i, axis, c)
			}
		}
	}
	n := len(m.Vertices)
	for i, e := range m.Edges {
		for _, idx := range e {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: edge %d index %d out of range [0,%d)", ErrInvalidPayload, i, idx, n)
			}
		}
	}
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: face %d index %d out of range [0,%d)", ErrInvalidPayload, i, idx, n)
			}
		}
	}
	return nil
}

// Transform applies a row-major 4x4 homogeneous matrix to every vertex and
// returns the transformed copy.
func (m Mesh) Transform(t [4][4]float64) Mesh {
	out := Mesh{
		Vertices: make([][3]float64, len(m.Vertices)),
		Edges:    slices.Clone(m.Edges),
		Faces:    slices.Clone(m.Faces),
	}
	for i, v := range m.Vertices {
		var p [4]float64
		for r := 0; r < 4; r++ {
			p[r] = t[r][0]*v[0] + t[r][1]*v[1] + t[r][2]*v[2] + t[r][3]
		}
		if w := p[3]; w != 0 && w != 1 {
			p[0], p[1], p[2] = p[0]/w, p[1]/w, p[2]/w
		}
		out.Vertices[i] = [3]float64{p[0], p[1], p[2]}
	}
	return out
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min [3]float64
	Max [3]float64
}

// Size returns the box extent along each axis.
func (b Box) Size() [3]float64 {
	return [3]float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// AABB returns the bounding box of the vertices; ok is false for an empty
// mesh.
func (m Mesh) AABB() (box Box, ok bool) {
	if len(m.Vertices) == 0 {
		return Box{}, false
	}
	box.Min, box.Max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for a := 0; a < 3; a++ {
			box.Min[a] = min(box.Min[a], v[a])
			box.Max[a] = max(box.Max[a], v[a])
		}
	}
	return box, true
}
