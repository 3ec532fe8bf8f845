package codec

import (
	"math"
	"strconv"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// JSONTree returns tree with every integral float written as a JSON number
// carrying a fractional part ("3.0"), so it decodes back as a float instead
// of an integer. Other values are shared with tree.
func JSONTree(tree any) any {
	return markFloats(tree, func(text string) any { return json.Number(text) })
}

func yamlTree(tree any) any {
	return markFloats(tree, func(text string) any {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: text}
	})
}

func markFloats(v any, mark func(text string) any) any {
	switch x := v.(type) {
	case float64:
		return markFloat(x, mark)
	case float32:
		return markFloat(float64(x), mark)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = markFloats(el, mark)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = markFloats(el, mark)
		}
		return out
	}
	return v
}

func markFloat(f float64, mark func(text string) any) any {
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return f
	}
	return mark(strconv.FormatFloat(f, 'f', -1, 64) + ".0")
}
