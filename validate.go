package bimgraph

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/reoring/bimgraph/schema"
)

// ValidateData checks a raw attribute map against the declaration of
// typeName: required attributes present and non-null, no undeclared or
// inverse attributes, every value conforming to its declared kind. Failures
// are returned as Issues (errors.Is(err, ErrSchemaViolation) holds). raw is
// never modified.
func ValidateData(def *schema.Definition, typeName string, raw map[string]any) error {
	v := validator{def: def}
	if iss := v.record(typeName, raw, RootPath(), 0); len(iss) > 0 {
		return iss
	}
	return nil
}

// CoerceData returns a copy of raw with numbers converted to the declared
// kinds: integers to int64 and reals to float64 (from json.Number or any Go
// numeric type) and sequences to []any. Values that cannot be converted are
// left untouched for ValidateData to report.
func CoerceData(def *schema.Definition, typeName string, raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, val := range raw {
		a, ok := def.Attribute(typeName, k)
		if !ok {
			out[k] = val
			continue
		}
		out[k] = coerceValue(def, a.Type, val)
	}
	return out
}

// maxRecordNesting bounds validation of nested Records.
const maxRecordNesting = 64

type validator struct {
	def *schema.Definition
	// resolve looks up the type of a Ref target; nil accepts every Ref.
	resolve func(Ref) (string, bool)
}

func (v validator) record(typeName string, raw map[string]any, p PathRef, depth int) Issues {
	var iss Issues
	if !v.def.Has(typeName) {
		return AppendIssues(iss, IssueAt(p, CodeUnknownType, map[string]any{"type": typeName}))
	}
	for _, a := range v.def.AllAttributes(typeName) {
		val, present := raw[a.Name]
		ap := p.Field(a.Name)
		if a.IsInverse() {
			if present {
				iss = AppendIssues(iss, IssueAt(ap, CodeInverseAssigned, map[string]any{"attribute": a.Name}))
			}
			continue
		}
		if !present || val == nil {
			if a.Required() {
				iss = AppendIssues(iss, IssueAt(ap, CodeRequired, map[string]any{"attribute": a.Name}))
			}
			continue
		}
		iss = append(iss, v.attr(a.Type, val, ap, depth)...)
	}
	var unknown []string
	for k := range raw {
		if _, ok := v.def.Attribute(typeName, k); !ok {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)
	for _, k := range unknown {
		iss = AppendIssues(iss, IssueAt(p.Field(k), CodeUnknownAttribute, map[string]any{"attribute": k, "type": typeName}))
	}
	return iss
}

func (v validator) attr(t schema.AttrType, val any, p PathRef, depth int) Issues {
	if !t.List {
		if isList(val) {
			return Issues{invalidType(p, t.Kind.String(), val)}
		}
		return v.value(t, val, p, depth)
	}
	elems, ok := listElems(val)
	if !ok {
		return Issues{invalidType(p, t.String(), val)}
	}
	var iss Issues
	for i, e := range elems {
		iss = append(iss, v.value(t, e, p.Index(i), depth)...)
	}
	return iss
}

func (v validator) value(t schema.AttrType, val any, p PathRef, depth int) Issues {
	switch t.Kind {
	case schema.KindString:
		if _, ok := val.(string); !ok {
			return Issues{invalidType(p, "string", val)}
		}
	case schema.KindInteger:
		if _, ok := asInt(val); !ok {
			return Issues{invalidType(p, "integer", val)}
		}
	case schema.KindReal:
		if _, ok := asFloat(val); !ok {
			return Issues{invalidType(p, "real", val)}
		}
	case schema.KindBoolean:
		if _, ok := val.(bool); !ok {
			return Issues{invalidType(p, "boolean", val)}
		}
	case schema.KindEnum:
		s, ok := val.(string)
		if !ok {
			return Issues{invalidType(p, "enum", val)}
		}
		if !slices.Contains(t.Values, s) {
			return Issues{IssueAt(p, CodeInvalidEnum, map[string]any{"expected": t.Values, "got": s})}
		}
	case schema.KindRef:
		return v.ref(t.Ref, val, p, depth)
	case schema.KindAny:
		switch x := val.(type) {
		case string, bool:
		case Ref, *Entity, Record, *Record:
			return v.ref(v.def.Root(), x, p, depth)
		default:
			if _, ok := asFloat(val); !ok {
				return Issues{invalidType(p, "primitive or reference", val)}
			}
		}
	}
	return nil
}

func (v validator) ref(target string, val any, p PathRef, depth int) Issues {
	expected := "reference to " + target
	switch x := val.(type) {
	case Ref:
		if v.resolve == nil {
			return nil
		}
		typ, ok := v.resolve(x)
		if !ok {
			return Issues{IssueAt(p, CodeUnresolvedRef, map[string]any{"token": x.String()})}
		}
		if !v.def.IsA(typ, target) {
			return Issues{invalidTypeName(p, expected, typ)}
		}
	case *Entity:
		if x == nil {
			return Issues{invalidType(p, expected, nil)}
		}
		if !v.def.IsA(x.TypeName(), target) {
			return Issues{invalidTypeName(p, expected, x.TypeName())}
		}
	case *Record:
		if x == nil {
			return Issues{invalidType(p, expected, nil)}
		}
		return v.ref(target, *x, p, depth)
	case Record:
		if !v.def.IsA(x.Type, target) {
			if !v.def.Has(x.Type) {
				return Issues{IssueAt(p, CodeUnknownType, map[string]any{"type": x.Type})}
			}
			return Issues{invalidTypeName(p, expected, x.Type)}
		}
		if depth >= maxRecordNesting {
			return Issues{IssueAt(p, CodeMalformedDocument, map[string]any{"detail": "records nested too deeply"})}
		}
		return v.record(x.Type, x.Attributes, p, depth+1)
	default:
		return Issues{invalidType(p, expected, val)}
	}
	return nil
}

func invalidType(p PathRef, expected string, got any) Issue {
	return invalidTypeName(p, expected, describe(got))
}

func invalidTypeName(p PathRef, expected, got string) Issue {
	return IssueAt(p, CodeInvalidType, map[string]any{"expected": expected, "got": got})
}

// describe names the kind of a raw value for issue messages.
func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case Ref:
		return "reference " + x.String()
	case *Entity:
		if x == nil {
			return "null"
		}
		return "entity " + x.TypeName()
	case Record:
		return "record " + x.Type
	case *Record:
		if x == nil {
			return "null"
		}
		return "record " + x.Type
	case map[string]any:
		return "object"
	}
	if _, ok := asInt(v); ok {
		return "integer"
	}
	if _, ok := asFloat(v); ok {
		return "real"
	}
	if isList(v) {
		return "list"
	}
	return fmt.Sprintf("%T", v)
}

// numberText is satisfied by json.Number from both encoding/json and go-json.
type numberText interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	case numberText:
		n, err := strconv.ParseInt(x.String(), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case numberText:
		f, err := x.Float64()
		return f, err == nil
	}
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	return 0, false
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// listElems views any slice or array as []any.
func listElems(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	if !isList(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func coerceValue(def *schema.Definition, t schema.AttrType, val any) any {
	if t.List {
		elems, ok := listElems(val)
		if !ok {
			return val
		}
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = coerceScalar(def, t.Kind, e)
		}
		return out
	}
	return coerceScalar(def, t.Kind, val)
}

func coerceScalar(def *schema.Definition, k schema.Kind, val any) any {
	switch k {
	case schema.KindInteger:
		if n, ok := asInt(val); ok {
			return n
		}
		if f, ok := val.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
	case schema.KindReal:
		if f, ok := asFloat(val); ok {
			return f
		}
	case schema.KindAny:
		if n, ok := asInt(val); ok {
			return n
		}
		if f, ok := asFloat(val); ok {
			return f
		}
		if r, ok := val.(Record); ok {
			return coerceRecord(def, r)
		}
	case schema.KindRef:
		if r, ok := val.(Record); ok {
			return coerceRecord(def, r)
		}
	}
	return val
}

func coerceRecord(def *schema.Definition, r Record) Record {
	return Record{ID: r.ID, Type: r.Type, Attributes: CoerceData(def, r.Type, r.Attributes)}
}
