package content

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TypeSpec registers one flaggable content type.
type TypeSpec struct {
	// Name is "app.model".
	Name string `toml:"name" json:"name"`
	// ID is an optional numeric alias for Name.
	ID uint `toml:"id" json:"id,omitempty"`
	// Table backs GormResolver lookups.
	Table string `toml:"table" json:"table,omitempty"`
	// CreatorFields are the columns a caller may name as the content's creator.
	CreatorFields []string `toml:"creator_fields" json:"creator_fields,omitempty"`
}

// Registry knows every flaggable content type.
type Registry struct {
	byName map[string]TypeSpec
	byID   map[uint]TypeSpec
}

// NewRegistry validates specs and indexes them by name and id.
func NewRegistry(specs ...TypeSpec) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]TypeSpec, len(specs)),
		byID:   make(map[uint]TypeSpec, len(specs)),
	}
	for _, spec := range specs {
		spec.Name = strings.ToLower(spec.Name)
		app, model, ok := strings.Cut(spec.Name, ".")
		if !ok || !identRegex.MatchString(app) || !identRegex.MatchString(model) {
			return nil, fmt.Errorf("content type %q must look like app.model", spec.Name)
		}
		if _, dup := r.byName[spec.Name]; dup {
			return nil, fmt.Errorf("content type %q registered twice", spec.Name)
		}
		if spec.Table != "" && !identRegex.MatchString(spec.Table) {
			return nil, fmt.Errorf("content type %q: invalid table name %q", spec.Name, spec.Table)
		}
		for _, f := range spec.CreatorFields {
			if !identRegex.MatchString(f) {
				return nil, fmt.Errorf("content type %q: invalid creator field %q", spec.Name, f)
			}
		}
		spec.CreatorFields = slices.Clone(spec.CreatorFields)
		if spec.ID != 0 {
			if other, dup := r.byID[spec.ID]; dup {
				return nil, fmt.Errorf("content types %q and %q share id %d", other.Name, spec.Name, spec.ID)
			}
			r.byID[spec.ID] = spec
		}
		r.byName[spec.Name] = spec
	}
	return r, nil
}

// MustRegistry is NewRegistry for static registrations.
func MustRegistry(specs ...TypeSpec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (TypeSpec, bool) {
	spec, ok := r.byName[name]
	return spec, ok
}

// Types lists registered type names in sorted order.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
