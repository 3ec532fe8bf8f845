package bimgraph

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Ref is an unresolved reference to the record with the given identity. It is
// the placeholder form produced by record sources and document decoding.
type Ref struct{ ID int64 }

func (r Ref) String() string { return "#" + strconv.FormatInt(r.ID, 10) }

// ParseRef parses a "#<n>" identity token.
func ParseRef(token string) (Ref, bool) {
	s, ok := strings.CutPrefix(token, "#")
	if !ok {
		return Ref{}, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return Ref{}, false
	}
	return Ref{ID: id}, true
}

// Record is one raw entity as produced by the model parser: an identity, a
// type name and attribute values. Values are primitives, Ref placeholders,
// nested Records, or slices of those.
type Record struct {
	ID         int64
	Type       string
	Attributes map[string]any
}

// RecordSource yields raw records in load order. Next returns io.EOF after
// the last record.
type RecordSource interface {
	Next() (Record, error)
}

type sliceSource struct {
	recs []Record
	i    int
}

// Records adapts a slice of records to a RecordSource.
func Records(recs ...Record) RecordSource { return &sliceSource{recs: recs} }

func (s *sliceSource) Next() (Record, error) {
	if s.i >= len(s.recs) {
		return Record{}, io.EOF
	}
	r := s.recs[s.i]
	s.i++
	return r, nil
}

type jsonLine struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

type jsonRecordSource struct {
	dec  *json.Decoder
	line int
}

// NewJSONRecordSource reads newline-delimited JSON records of the form
// {"id":12,"type":"IfcWall","attributes":{...}}. References are written as
// {"$ref":"#5"}.
func NewJSONRecordSource(r io.Reader) RecordSource {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &jsonRecordSource{dec: dec}
}

func (s *jsonRecordSource) Next() (Record, error) {
	var l jsonLine
	if err := s.dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: record %d: %v", ErrMalformedDocument, s.line+1, err)
	}
	s.line++
	attrs := make(map[string]any, len(l.Attributes))
	for k, v := range l.Attributes {
		rv, err := lineValue(v)
		if err != nil {
			return Record{}, fmt.Errorf("%w: record #%d attribute %s: %v", ErrMalformedDocument, l.ID, k, err)
		}
		attrs[k] = rv
	}
	return Record{ID: l.ID, Type: l.Type, Attributes: attrs}, nil
}

func lineValue(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		tok, ok := x["$ref"].(string)
		if !ok || len(x) != 1 {
			return nil, errors.New(`objects must be {"$ref": "#<id>"}`)
		}
		ref, ok := ParseRef(tok)
		if !ok {
			return nil, fmt.Errorf("bad reference token %q", tok)
		}
		return ref, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ev, err := lineValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return v, nil
	}
}

// WriteJSONRecords writes records in the format read by NewJSONRecordSource.
func WriteJSONRecords(w io.Writer, recs ...Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		attrs := make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = lineJSON(v)
		}
		if err := enc.Encode(jsonLine{ID: r.ID, Type: r.Type, Attributes: attrs}); err != nil {
			return err
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func lineJSON(v any) any {
	switch x := v.(type) {
	case Ref:
		return map[string]any{"$ref": x.String()}
	case *Entity:
		return map[string]any{"$ref": Ref{ID: x.ID()}.String()}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = lineJSON(e)
		}
		return out
	default:
		return v
	}
}
