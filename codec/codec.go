// Package codec provides alternative encodings of bimgraph tree documents.
//
// A tree document is what Entity.ToDict and Graph.ToDict produce: nested
// map[string]any, []any and primitives. Every Format turns such a tree into
// bytes and back; decoded trees are normalised (string-keyed maps, []any
// sequences) so they can be passed straight to bimgraph.FromDict or
// bimgraph.GraphFromDict.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned by Lookup.
var ErrUnknownFormat = errors.New("codec: unknown format")

// Format encodes and decodes tree documents.
type Format interface {
	Name() string
	Marshal(tree any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

var (
	// JSON encodes with go-json; numbers decode as json.Number. Integral
	// floats are written as "3.0" so they stay floats.
	JSON Format = jsonFormat{}
	// YAML encodes with gopkg.in/yaml.v3. Integral floats are written as
	// "3.0" so they stay floats.
	YAML Format = yamlFormat{}
	// MsgPack encodes with vmihailenco/msgpack with sorted map keys, so equal
	// trees give equal bytes.
	MsgPack Format = msgpackFormat{}
)

var formats = []Format{JSON, YAML, MsgPack}

// Lookup returns the format registered under name ("json", "yaml" or "yml",
// "msgpack").
func Lookup(name string) (Format, error) {
	n := strings.ToLower(name)
	if n == "yml" {
		n = "yaml"
	}
	for _, f := range formats {
		if f.Name() == n {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFormat, name)
}

// Names lists the registered format names.
func Names() []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = f.Name()
	}
	return out
}

type jsonFormat struct{}

func (jsonFormat) Name() string { return "json" }

func (jsonFormat) Marshal(tree any) ([]byte, error) { return json.Marshal(JSONTree(tree)) }

func (jsonFormat) Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	return normalize(v)
}

type yamlFormat struct{}

func (yamlFormat) Name() string { return "yaml" }

func (yamlFormat) Marshal(tree any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(yamlTree(tree)); err != nil {
		return nil, fmt.Errorf("codec: yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("codec: yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func (yamlFormat) Unmarshal(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("codec: yaml: %w", err)
	}
	return normalize(v)
}

type msgpackFormat struct{}

func (msgpackFormat) Name() string { return "msgpack" }

func (msgpackFormat) Marshal(tree any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("codec: msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

func (msgpackFormat) Unmarshal(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, fmt.Errorf("codec: msgpack: %w", err)
	}
	return normalize(v)
}

// normalize converts decoder-specific containers to map[string]any and
// []any.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, el := range x {
			n, err := normalize(el)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("codec: non-string key %v", k)
			}
			n, err := normalize(el)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		out := slices.Clone(x)
		for i, el := range out {
			n, err := normalize(el)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return v, nil
}
