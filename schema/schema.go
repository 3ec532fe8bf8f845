// Package schema holds the externally supplied type system that bimgraph
// entities are checked against.
//
// A Definition is built once (from Go values with New, or from YAML/JSON files
// with Load) and is read-only afterwards, so it can be shared across graphs and
// goroutines. All polymorphism is table-driven: IsA, attribute lookup and
// containment rules are answered from precomputed tables keyed by type name.
package schema

import (
	"slices"
	"strings"
)

// Kind is the semantic value kind of an attribute (or of the elements of a
// list attribute).
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInteger
	KindReal
	KindBoolean
	KindEnum
	KindRef // reference to an entity of AttrType.Ref (or a subtype)
	KindAny // any primitive or reference (select types)
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindString:  "string",
	KindInteger: "integer",
	KindReal:    "real",
	KindBoolean: "boolean",
	KindEnum:    "enum",
	KindRef:     "ref",
	KindAny:     "any",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// ParseKind maps a kind name as written in schema files to a Kind.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if i == int(KindInvalid) {
			continue
		}
		if n == s {
			return Kind(i), true
		}
	}
	return KindInvalid, false
}

// AttrType describes the declared value type of an attribute.
type AttrType struct {
	Kind   Kind
	Ref    string   // target type name when Kind is KindRef
	Values []string // allowed values when Kind is KindEnum
	List   bool     // ordered sequence of Kind
}

func (t AttrType) String() string {
	var b strings.Builder
	if t.List {
		b.WriteString("list<")
	}
	b.WriteString(t.Kind.String())
	if t.Kind == KindRef && t.Ref != "" {
		b.WriteByte(' ')
		b.WriteString(t.Ref)
	}
	if t.List {
		b.WriteByte('>')
	}
	return b.String()
}

// InverseOf names the forward relation an inverse attribute is computed from:
// the inverse holds every entity of Type whose Attribute references the owner.
type InverseOf struct {
	Type      string
	Attribute string
}

// Attribute is the static metadata of one declared attribute.
type Attribute struct {
	Name     string
	Type     AttrType
	Optional bool
	Inverse  *InverseOf
	// DeclaredBy is filled in by the Definition with the type that declares
	// the attribute.
	DeclaredBy string
}

// IsInverse reports whether the attribute is a computed back-reference.
func (a Attribute) IsInverse() bool { return a.Inverse != nil }

// Required reports whether raw data must carry a non-null value for a.
func (a Attribute) Required() bool { return !a.Optional && a.Inverse == nil }

// TypeDecl declares one entity type.
type TypeDecl struct {
	Name       string
	Supertypes []string
	Abstract   bool
	Attributes []Attribute
}

// ContainmentRule describes one relation type that links a parent to its
// children in the spatial/decomposition hierarchy.
type ContainmentRule struct {
	Relation string // relation entity type, e.g. IfcRelAggregates
	Parent   string // single reference attribute on Relation
	Children string // list reference attribute on Relation
}

// Config carries definition-wide settings.
type Config struct {
	Name    string
	Version string
	// GlobalIDAttribute names the attribute holding the document-unique
	// global identifier. Defaults to "GlobalId".
	GlobalIDAttribute string
	// NameAttribute names the human-readable name attribute used by name
	// lookups and labels. Defaults to "Name".
	NameAttribute string
	Containment   []ContainmentRule
}

const (
	DefaultGlobalIDAttribute = "GlobalId"
	DefaultNameAttribute     = "Name"
)

// Definition is a validated, immutable schema.
type Definition struct {
	cfg   Config
	root  string
	order []string
	types map[string]*typeInfo
}

type typeInfo struct {
	decl      TypeDecl
	all       []Attribute
	index     map[string]int // attribute name -> position in all
	ancestors map[string]struct{}
	subtypes  []string
}

func (d *Definition) Name() string              { return d.cfg.Name }
func (d *Definition) Version() string           { return d.cfg.Version }
func (d *Definition) GlobalIDAttribute() string { return d.cfg.GlobalIDAttribute }
func (d *Definition) NameAttribute() string     { return d.cfg.NameAttribute }

// Root returns the single top type of the supertype DAG.
func (d *Definition) Root() string { return d.root }

// Types returns all type names in declaration order.
func (d *Definition) Types() []string { return slices.Clone(d.order) }

// Has reports whether typeName is declared.
func (d *Definition) Has(typeName string) bool {
	_, ok := d.types[typeName]
	return ok
}

// Type returns the declaration of typeName.
func (d *Definition) Type(typeName string) (TypeDecl, bool) {
	ti, ok := d.types[typeName]
	if !ok {
		return TypeDecl{}, false
	}
	return ti.decl, true
}

// Supertypes returns the direct supertypes of typeName.
func (d *Definition) Supertypes(typeName string) []string {
	ti, ok := d.types[typeName]
	if !ok {
		return nil
	}
	return slices.Clone(ti.decl.Supertypes)
}

// DeclaredAttributes returns the attributes declared directly on typeName, in
// declaration order.
func (d *Definition) DeclaredAttributes(typeName string) []Attribute {
	ti, ok := d.types[typeName]
	if !ok {
		return nil
	}
	return slices.Clone(ti.decl.Attributes)
}

// AllAttributes returns every attribute of typeName, inherited ones first,
// deduplicated by name.
func (d *Definition) AllAttributes(typeName string) []Attribute {
	ti, ok := d.types[typeName]
	if !ok {
		return nil
	}
	return slices.Clone(ti.all)
}

// AttributeNames is AllAttributes projected to names.
func (d *Definition) AttributeNames(typeName string) []string {
	ti, ok := d.types[typeName]
	if !ok {
		return nil
	}
	out := make([]string, len(ti.all))
	for i, a := range ti.all {
		out[i] = a.Name
	}
	return out
}

// Attribute resolves the metadata of name as seen from typeName (declared or
// inherited). No instance is needed.
func (d *Definition) Attribute(typeName, name string) (Attribute, bool) {
	ti, ok := d.types[typeName]
	if !ok {
		return Attribute{}, false
	}
	i, ok := ti.index[name]
	if !ok {
		return Attribute{}, false
	}
	return ti.all[i], true
}

// IsA reports whether typeName equals super or transitively specializes it.
func (d *Definition) IsA(typeName, super string) bool {
	ti, ok := d.types[typeName]
	if !ok {
		return false
	}
	_, ok = ti.ancestors[super]
	return ok
}

// Subtypes returns typeName and every type specializing it, in declaration
// order.
func (d *Definition) Subtypes(typeName string) []string {
	ti, ok := d.types[typeName]
	if !ok {
		return nil
	}
	return slices.Clone(ti.subtypes)
}

// Inheritance returns the chain from the root type down to typeName following
// the first supertype at each step.
func (d *Definition) Inheritance(typeName string) []string {
	var chain []string
	seen := make(map[string]struct{})
	for cur := typeName; cur != ""; {
		ti, ok := d.types[cur]
		if !ok {
			break
		}
		if _, dup := seen[cur]; dup {
			break
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)
		if len(ti.decl.Supertypes) == 0 {
			break
		}
		cur = ti.decl.Supertypes[0]
	}
	slices.Reverse(chain)
	return chain
}

// Containment returns the containment rules in priority order.
func (d *Definition) Containment() []ContainmentRule { return slices.Clone(d.cfg.Containment) }
