package model

import (
	"os"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldSpec describes one document field the OCR stage is expected to extract.
type FieldSpec struct {
	Key             string         `yaml:"key" json:"key"`
	Label           string         `yaml:"label" json:"label"`
	Aliases         []string       `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Required        bool           `yaml:"required" json:"required"`
	Validation      string         `yaml:"validation,omitempty" json:"validation,omitempty"`
	ValidationRegex *regexp.Regexp `yaml:"-" json:"-"` // pre-compiled from Validation at registry load
}

// FieldRegistry is an indexed collection of field specs.
type FieldRegistry struct {
	Fields   []FieldSpec
	byKey    map[string]*FieldSpec
	byAlias  map[string]*FieldSpec
	required []*FieldSpec
}

// NewFieldRegistry creates a FieldRegistry with indexed lookups.
// Pre-compiles validation regexes from FieldSpec.Validation patterns.
func NewFieldRegistry(fields []FieldSpec) *FieldRegistry {
	r := &FieldRegistry{
		Fields:  fields,
		byKey:   make(map[string]*FieldSpec, len(fields)),
		byAlias: make(map[string]*FieldSpec),
	}
	for i := range r.Fields {
		f := &r.Fields[i]
		if f.Validation != "" {
			if re, err := regexp.Compile(f.Validation); err == nil {
				f.ValidationRegex = re
			}
		}
		r.byKey[f.Key] = f
		for _, a := range f.Aliases {
			r.byAlias[a] = f
		}
		if f.Required {
			r.required = append(r.required, f)
		}
	}
	return r
}

// ByKey returns the field spec for the given key, or nil if not found.
func (r *FieldRegistry) ByKey(key string) *FieldSpec {
	return r.byKey[key]
}

// Canonical resolves a key or alias to its canonical field spec, or nil.
func (r *FieldRegistry) Canonical(key string) *FieldSpec {
	if f := r.byKey[key]; f != nil {
		return f
	}
	return r.byAlias[key]
}

// Required returns all required field specs.
func (r *FieldRegistry) Required() []*FieldSpec {
	return r.required
}

// Keys returns all canonical field keys in ascending order.
func (r *FieldRegistry) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for i := range r.Fields {
		keys = append(keys, r.Fields[i].Key)
	}
	sort.Strings(keys)
	return keys
}

// Validate reports whether the value satisfies the field's validation
// pattern. Fields without a pattern always validate.
func (f *FieldSpec) Validate(value string) bool {
	if f.ValidationRegex == nil {
		return true
	}
	return f.ValidationRegex.MatchString(value)
}

// LoadRegistry reads a field registry from a YAML file with a top-level
// "fields" key listing specs.
func LoadRegistry(path string) (*FieldRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read field registry %s", path)
	}

	var wrapper struct {
		Fields []FieldSpec `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "model: parse field registry")
	}
	if len(wrapper.Fields) == 0 {
		return nil, eris.Errorf("model: field registry %s defines no fields", path)
	}

	return NewFieldRegistry(wrapper.Fields), nil
}

// DefaultRegistry returns the built-in identity-document field set the OCR
// stage extracts when no registry file is configured.
func DefaultRegistry() *FieldRegistry {
	return NewFieldRegistry([]FieldSpec{
		{Key: "first_name", Label: "First Name", Required: true},
		{Key: "middle_name", Label: "Middle Name"},
		{Key: "last_name", Label: "Last Name", Required: true},
		{Key: "gender", Label: "Gender", Aliases: []string{"sex"}},
		{Key: "date_of_birth", Label: "Date of Birth", Aliases: []string{"dob", "birth_date"}, Required: true,
			Validation: `^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}$`},
		{Key: "address_line_1", Label: "Address Line 1", Aliases: []string{"address"}},
		{Key: "address_line_2", Label: "Address Line 2"},
		{Key: "city", Label: "City", Aliases: []string{"town"}},
		{Key: "state", Label: "State"},
		{Key: "pin_code", Label: "Pin Code", Aliases: []string{"pin", "pincode", "postal_code", "zip"},
			Validation: `^\d{4,10}$`},
		{Key: "country", Label: "Country"},
		{Key: "phone_number", Label: "Phone Number", Aliases: []string{"phone", "mobile", "contact"},
			Validation: `^[+\d\-\s().]{8,}$`},
		{Key: "email", Label: "Email",
			Validation: `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`},
	})
}
