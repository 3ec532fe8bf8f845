package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a Definition (YAML or JSON).
type File struct {
	Name              string            `yaml:"name" json:"name" validate:"required"`
	Version           string            `yaml:"version,omitempty" json:"version,omitempty"`
	GlobalIDAttribute string            `yaml:"global_id_attribute,omitempty" json:"global_id_attribute,omitempty"`
	NameAttribute     string            `yaml:"name_attribute,omitempty" json:"name_attribute,omitempty"`
	Containment       []FileContainment `yaml:"containment,omitempty" json:"containment,omitempty" validate:"dive"`
	Types             []FileType        `yaml:"types" json:"types" validate:"required,min=1,dive"`
}

type FileContainment struct {
	Relation string `yaml:"relation" json:"relation" validate:"required"`
	Parent   string `yaml:"parent" json:"parent" validate:"required"`
	Children string `yaml:"children" json:"children" validate:"required"`
}

type FileType struct {
	Name       string          `yaml:"name" json:"name" validate:"required"`
	Supertypes []string        `yaml:"supertypes,omitempty" json:"supertypes,omitempty" validate:"dive,required"`
	Abstract   bool            `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Attributes []FileAttribute `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
}

type FileAttribute struct {
	Name     string       `yaml:"name" json:"name" validate:"required"`
	Type     string       `yaml:"type" json:"type" validate:"required,oneof=string integer real boolean enum ref any"`
	Ref      string       `yaml:"ref,omitempty" json:"ref,omitempty" validate:"required_if=Type ref"`
	Values   []string     `yaml:"values,omitempty" json:"values,omitempty" validate:"required_if=Type enum"`
	List     bool         `yaml:"list,omitempty" json:"list,omitempty"`
	Optional bool         `yaml:"optional,omitempty" json:"optional,omitempty"`
	Inverse  *FileInverse `yaml:"inverse,omitempty" json:"inverse,omitempty"`
}

type FileInverse struct {
	Type      string `yaml:"type" json:"type" validate:"required"`
	Attribute string `yaml:"attribute" json:"attribute" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadYAML decodes and builds a Definition from YAML bytes.
func LoadYAML(data []byte) (*Definition, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidDefinition, err)
	}
	return f.Build()
}

// LoadJSON decodes and builds a Definition from JSON bytes.
func LoadJSON(data []byte) (*Definition, error) {
	var f File
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrInvalidDefinition, err)
	}
	return f.Build()
}

// Load reads a schema file; ".json" files are decoded as JSON, everything else
// as YAML.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(data)
	}
	return LoadYAML(data)
}

// Build checks the file structure and converts it into a Definition.
func (f File) Build() (*Definition, error) {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, invalidf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return nil, errors.Join(msgs...)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	cfg := Config{
		Name:              f.Name,
		Version:           f.Version,
		GlobalIDAttribute: f.GlobalIDAttribute,
		NameAttribute:     f.NameAttribute,
	}
	for _, c := range f.Containment {
		cfg.Containment = append(cfg.Containment, ContainmentRule(c))
	}
	decls := make([]TypeDecl, 0, len(f.Types))
	for _, ft := range f.Types {
		decl := TypeDecl{Name: ft.Name, Supertypes: ft.Supertypes, Abstract: ft.Abstract}
		for _, fa := range ft.Attributes {
			kind, _ := ParseKind(fa.Type)
			a := Attribute{
				Name:     fa.Name,
				Type:     AttrType{Kind: kind, Ref: fa.Ref, Values: fa.Values, List: fa.List},
				Optional: fa.Optional,
			}
			if fa.Inverse != nil {
				a.Inverse = &InverseOf{Type: fa.Inverse.Type, Attribute: fa.Inverse.Attribute}
			}
			decl.Attributes = append(decl.Attributes, a)
		}
		decls = append(decls, decl)
	}
	return New(cfg, decls...)
}

// ToFile is the inverse of File.Build.
func (d *Definition) ToFile() File {
	f := File{
		Name:              d.cfg.Name,
		Version:           d.cfg.Version,
		GlobalIDAttribute: d.cfg.GlobalIDAttribute,
		NameAttribute:     d.cfg.NameAttribute,
	}
	for _, c := range d.cfg.Containment {
		f.Containment = append(f.Containment, FileContainment(c))
	}
	for _, name := range d.order {
		decl := d.types[name].decl
		ft := FileType{Name: decl.Name, Supertypes: decl.Supertypes, Abstract: decl.Abstract}
		for _, a := range decl.Attributes {
			fa := FileAttribute{
				Name:     a.Name,
				Type:     a.Type.Kind.String(),
				Ref:      a.Type.Ref,
				Values:   a.Type.Values,
				List:     a.Type.List,
				Optional: a.Optional,
			}
			if a.Inverse != nil {
				fa.Inverse = &FileInverse{Type: a.Inverse.Type, Attribute: a.Inverse.Attribute}
			}
			ft.Attributes = append(ft.Attributes, fa)
		}
		f.Types = append(f.Types, ft)
	}
	return f
}
