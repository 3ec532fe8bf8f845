package schema

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidDefinition is wrapped by every error returned while building a
// Definition.
var ErrInvalidDefinition = errors.New("schema: invalid definition")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidDefinition}, args...)...)
}

// New validates decls and builds an immutable Definition. All problems found
// are reported together via errors.Join.
func New(cfg Config, decls ...TypeDecl) (*Definition, error) {
	if cfg.GlobalIDAttribute == "" {
		cfg.GlobalIDAttribute = DefaultGlobalIDAttribute
	}
	if cfg.NameAttribute == "" {
		cfg.NameAttribute = DefaultNameAttribute
	}
	cfg.Containment = slices.Clone(cfg.Containment)

	d := &Definition{cfg: cfg, types: make(map[string]*typeInfo, len(decls))}
	var errs []error

	if len(decls) == 0 {
		return nil, invalidf("no types declared")
	}
	for _, decl := range decls {
		if decl.Name == "" {
			errs = append(errs, invalidf("type with empty name"))
			continue
		}
		if _, dup := d.types[decl.Name]; dup {
			errs = append(errs, invalidf("type %q declared twice", decl.Name))
			continue
		}
		decl.Supertypes = slices.Clone(decl.Supertypes)
		decl.Attributes = slices.Clone(decl.Attributes)
		seen := make(map[string]struct{}, len(decl.Attributes))
		for i := range decl.Attributes {
			a := &decl.Attributes[i]
			a.DeclaredBy = decl.Name
			a.Type.Values = slices.Clone(a.Type.Values)
			if a.Inverse != nil {
				inv := *a.Inverse
				a.Inverse = &inv
			}
			if _, dup := seen[a.Name]; dup {
				errs = append(errs, invalidf("type %q: attribute %q declared twice", decl.Name, a.Name))
			}
			seen[a.Name] = struct{}{}
		}
		d.types[decl.Name] = &typeInfo{decl: decl}
		d.order = append(d.order, decl.Name)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var roots []string
	for _, name := range d.order {
		ti := d.types[name]
		if len(ti.decl.Supertypes) == 0 {
			roots = append(roots, name)
		}
		for _, s := range ti.decl.Supertypes {
			if _, ok := d.types[s]; !ok {
				errs = append(errs, invalidf("type %q: unknown supertype %q", name, s))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := d.checkAcyclic(); err != nil {
		return nil, err
	}
	switch len(roots) {
	case 0:
		return nil, invalidf("no root type")
	case 1:
		d.root = roots[0]
	default:
		return nil, invalidf("multiple root types %v", roots)
	}

	for _, name := range d.order {
		d.closure(name)
	}
	for _, name := range d.order {
		d.resolveAttributes(name, make(map[string]bool))
	}
	for _, name := range d.order {
		ti := d.types[name]
		for _, sub := range d.order {
			if _, ok := d.types[sub].ancestors[name]; ok {
				ti.subtypes = append(ti.subtypes, sub)
			}
		}
	}

	errs = append(errs, d.checkAttributes()...)
	errs = append(errs, d.checkContainment()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return d, nil
}

// MustNew is New for definitions known to be valid at init time.
func MustNew(cfg Config, decls ...TypeDecl) *Definition {
	d, err := New(cfg, decls...)
	if err != nil {
		panic(err)
	}
	return d
}

const (
	white = iota
	grey
	black
)

func (d *Definition) checkAcyclic() error {
	color := make(map[string]int, len(d.types))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case grey:
			return invalidf("supertype cycle %v", append(path, name))
		case black:
			return nil
		}
		color[name] = grey
		for _, s := range d.types[name].decl.Supertypes {
			if err := visit(s, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for _, name := range d.order {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func (d *Definition) closure(name string) map[string]struct{} {
	ti := d.types[name]
	if ti.ancestors != nil {
		return ti.ancestors
	}
	anc := map[string]struct{}{name: {}}
	for _, s := range ti.decl.Supertypes {
		for a := range d.closure(s) {
			anc[a] = struct{}{}
		}
	}
	ti.ancestors = anc
	return anc
}

// resolveAttributes flattens inherited attributes, supertypes first. A
// redeclaration in a subtype keeps the inherited position and replaces the
// metadata.
func (d *Definition) resolveAttributes(name string, done map[string]bool) []Attribute {
	ti := d.types[name]
	if ti.all != nil || done[name] {
		return ti.all
	}
	done[name] = true
	var all []Attribute
	index := make(map[string]int)
	add := func(a Attribute) {
		if i, ok := index[a.Name]; ok {
			if a.DeclaredBy == name {
				all[i] = a
			}
			return
		}
		index[a.Name] = len(all)
		all = append(all, a)
	}
	for _, s := range ti.decl.Supertypes {
		for _, a := range d.resolveAttributes(s, done) {
			add(a)
		}
	}
	for _, a := range ti.decl.Attributes {
		add(a)
	}
	if all == nil {
		all = []Attribute{}
	}
	ti.all = all
	ti.index = index
	return all
}

func (d *Definition) checkAttributes() []error {
	var errs []error
	for _, name := range d.order {
		for _, a := range d.types[name].decl.Attributes {
			where := fmt.Sprintf("type %q: attribute %q", name, a.Name)
			switch a.Type.Kind {
			case KindString, KindInteger, KindReal, KindBoolean, KindAny:
			case KindEnum:
				if len(a.Type.Values) == 0 {
					errs = append(errs, invalidf("%s: enum without values", where))
				}
			case KindRef:
				if !d.Has(a.Type.Ref) {
					errs = append(errs, invalidf("%s: unknown reference target %q", where, a.Type.Ref))
				}
			default:
				errs = append(errs, invalidf("%s: invalid kind", where))
			}
			if a.Inverse == nil {
				continue
			}
			fwd, ok := d.Attribute(a.Inverse.Type, a.Inverse.Attribute)
			switch {
			case !ok:
				errs = append(errs, invalidf("%s: inverse of unknown attribute %s.%s", where, a.Inverse.Type, a.Inverse.Attribute))
			case fwd.IsInverse() || fwd.Type.Kind != KindRef:
				errs = append(errs, invalidf("%s: inverse of non-reference attribute %s.%s", where, a.Inverse.Type, a.Inverse.Attribute))
			}
		}
	}
	return errs
}

func (d *Definition) checkContainment() []error {
	var errs []error
	for i, r := range d.cfg.Containment {
		if !d.Has(r.Relation) {
			errs = append(errs, invalidf("containment[%d]: unknown relation type %q", i, r.Relation))
			continue
		}
		for _, attr := range []string{r.Parent, r.Children} {
			a, ok := d.Attribute(r.Relation, attr)
			if !ok || a.IsInverse() || a.Type.Kind != KindRef {
				errs = append(errs, invalidf("containment[%d]: %s.%s is not a forward reference", i, r.Relation, attr))
			}
		}
	}
	return errs
}
