package mesh

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FullPrecision hashes coordinates by their exact shortest round-trip decimal
// text.
const FullPrecision = -1

// SHA256 returns the hex digest of the canonical text form of the mesh.
//
// With precision >= 0 every coordinate is rounded to that many fractional
// digits, so coordinates that quantize to the same grid point hash
// identically. Vertex order is significant.
func (m Mesh) SHA256(precision int) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	h := sha256.New()
	w := bufio.NewWriter(h)

	w.WriteString("mesh/1\nvertices ")
	w.WriteString(strconv.Itoa(len(m.Vertices)))
	w.WriteByte('\n')
	for _, v := range m.Vertices {
		for a, c := range v {
			if a > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(FormatCoord(c, precision))
		}
		w.WriteByte('\n')
	}
	w.WriteString("edges ")
	w.WriteString(strconv.Itoa(len(m.Edges)))
	w.WriteByte('\n')
	for _, e := range m.Edges {
		writeInts(w, e[:])
	}
	w.WriteString("faces ")
	w.WriteString(strconv.Itoa(len(m.Faces)))
	w.WriteByte('\n')
	for _, f := range m.Faces {
		writeInts(w, f[:])
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeInts(w *bufio.Writer, xs []int) {
	for i, x := range xs {
		if i > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(strconv.Itoa(x))
	}
	w.WriteByte('\n')
}

// FormatCoord renders c the way SHA256 hashes it. Negative zero, including
// values that round to zero, is written without a sign.
func FormatCoord(c float64, precision int) string {
	s := strconv.FormatFloat(c, 'f', max(precision, -1), 64)
	if s[0] == '-' && strings.Trim(s[1:], "0.") == "" {
		s = s[1:]
	}
	return s
}

// DigestAll hashes independent meshes in parallel; results are in input
// order. The first failure cancels the remaining work.
func DigestAll(ctx context.Context, meshes []Mesh, precision int) ([]string, error) {
	out := make([]string, len(meshes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range meshes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := meshes[i].SHA256(precision)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
