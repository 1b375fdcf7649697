package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parameter is one declared function parameter.
type Parameter struct {
	Name       string  `json:"name" yaml:"name"`
	ParamType  *string `json:"param_type" yaml:"param_type"`
	HasDefault bool    `json:"has_default" yaml:"has_default"`
	IsVariadic bool    `json:"is_variadic" yaml:"is_variadic"`
}

// TypeParam is a generic type parameter.
type TypeParam struct {
	Name   string   `json:"name" yaml:"name"`
	Bounds []string `json:"bounds" yaml:"bounds"`
}

// FunctionModifiers are the boolean facts about a function.
//
// UseSignatureOnlyForSize marks trivial documented factories (a pass or
// single-return body with Doc() annotations) that should be sized by their
// signature rather than their body.
type FunctionModifiers struct {
	IsAsync                 bool       `json:"is_async" yaml:"is_async"`
	IsGenerator             bool       `json:"is_generator" yaml:"is_generator"`
	IsStatic                bool       `json:"is_static" yaml:"is_static"`
	IsAbstract              bool       `json:"is_abstract" yaml:"is_abstract"`
	IsConstructor           bool       `json:"is_constructor" yaml:"is_constructor"`
	IsDIWired               bool       `json:"is_di_wired" yaml:"is_di_wired"`
	UseSignatureOnlyForSize bool       `json:"use_signature_only_for_size" yaml:"use_signature_only_for_size"`
	Visibility              Visibility `json:"visibility" yaml:"visibility"`
}

// FunctionDetails is the Function variant of Details.
type FunctionDetails struct {
	Parameters  []Parameter       `json:"parameters" yaml:"parameters"`
	ReturnTypes []string          `json:"return_types" yaml:"return_types"`
	TypeParams  []TypeParam       `json:"type_params" yaml:"type_params"`
	Modifiers   FunctionModifiers `json:"modifiers" yaml:"modifiers"`
}

// VariableDetails is the Variable variant of Details.
type VariableDetails struct {
	VarType    *string       `json:"var_type" yaml:"var_type"`
	Mutability Mutability    `json:"mutability" yaml:"mutability"`
	Scope      VariableScope `json:"scope" yaml:"scope"`
	Visibility Visibility    `json:"visibility" yaml:"visibility"`
}

// TypeField is a field of a type.
type TypeField struct {
	Name       string     `json:"name" yaml:"name"`
	FieldType  *string    `json:"field_type" yaml:"field_type"`
	Mutability Mutability `json:"mutability" yaml:"mutability"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
	SymbolID   string     `json:"symbol_id" yaml:"symbol_id"`
}

// TypeDetails is the Type variant of Details.
type TypeDetails struct {
	Kind       TypeKind    `json:"kind" yaml:"kind"`
	IsAbstract bool        `json:"is_abstract" yaml:"is_abstract"`
	IsFinal    bool        `json:"is_final" yaml:"is_final"`
	Visibility Visibility  `json:"visibility" yaml:"visibility"`
	TypeParams []TypeParam `json:"type_params" yaml:"type_params"`
	Fields     []TypeField `json:"fields" yaml:"fields"`
	Inherits   []string    `json:"inherits" yaml:"inherits"`
	Implements []string    `json:"implements" yaml:"implements"`
}

// HasField reports whether a field with the given name is already recorded.
func (t *TypeDetails) HasField(name string) bool {
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// detailsVariant closes the set of payloads a Details can hold.
type detailsVariant interface {
	symbolKind() SymbolKind
	normalize()
}

func (*FunctionDetails) symbolKind() SymbolKind { return KindFunction }
func (*VariableDetails) symbolKind() SymbolKind { return KindVariable }
func (*TypeDetails) symbolKind() SymbolKind     { return KindType }

func (f *FunctionDetails) normalize() {
	if f.Parameters == nil {
		f.Parameters = []Parameter{}
	}
	if f.ReturnTypes == nil {
		f.ReturnTypes = []string{}
	}
	if f.TypeParams == nil {
		f.TypeParams = []TypeParam{}
	}
	normalizeTypeParams(f.TypeParams)
}

func (v *VariableDetails) normalize() {}

func (t *TypeDetails) normalize() {
	if t.TypeParams == nil {
		t.TypeParams = []TypeParam{}
	}
	if t.Fields == nil {
		t.Fields = []TypeField{}
	}
	if t.Inherits == nil {
		t.Inherits = []string{}
	}
	if t.Implements == nil {
		t.Implements = []string{}
	}
	normalizeTypeParams(t.TypeParams)
}

func normalizeTypeParams(tps []TypeParam) {
	for i := range tps {
		if tps[i].Bounds == nil {
			tps[i].Bounds = []string{}
		}
	}
}

// Details is the kind-specific payload of a definition: exactly one of
// Function, Variable or Type. On the wire it is a single-key object whose key
// is the variant name, e.g. {"Function": {...}}.
type Details struct {
	v detailsVariant
}

// FunctionOf wraps f as Details.
func FunctionOf(f FunctionDetails) Details {
	f.normalize()
	return Details{v: &f}
}

// VariableOf wraps v as Details.
func VariableOf(v VariableDetails) Details {
	return Details{v: &v}
}

// TypeOf wraps t as Details.
func TypeOf(t TypeDetails) Details {
	t.normalize()
	return Details{v: &t}
}

// Kind returns the variant's symbol kind, or "" when empty.
func (d Details) Kind() SymbolKind {
	if d.v == nil {
		return ""
	}
	return d.v.symbolKind()
}

// IsZero reports whether no variant is set.
func (d Details) IsZero() bool { return d.v == nil }

// Function returns the Function variant.
func (d Details) Function() (*FunctionDetails, bool) {
	f, ok := d.v.(*FunctionDetails)
	return f, ok
}

// Variable returns the Variable variant.
func (d Details) Variable() (*VariableDetails, bool) {
	v, ok := d.v.(*VariableDetails)
	return v, ok
}

// Type returns the Type variant.
func (d Details) Type() (*TypeDetails, bool) {
	t, ok := d.v.(*TypeDetails)
	return t, ok
}

var errNoVariant = errors.New("details: no variant set")

func (d Details) MarshalJSON() ([]byte, error) {
	if d.v == nil {
		return nil, errNoVariant
	}
	d.v.normalize()
	return json.Marshal(map[string]detailsVariant{string(d.v.symbolKind()): d.v})
}

func (d *Details) UnmarshalJSON(data []byte) error {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("details: %w", err)
	}
	if len(wrapper) != 1 {
		return fmt.Errorf("details: want exactly one variant key, got %d", len(wrapper))
	}
	for key, raw := range wrapper {
		v, err := newVariant(key)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("details %s: %w", key, err)
		}
		v.normalize()
		d.v = v
	}
	return nil
}

func (d Details) MarshalYAML() (any, error) {
	if d.v == nil {
		return nil, errNoVariant
	}
	d.v.normalize()
	return map[string]detailsVariant{string(d.v.symbolKind()): d.v}, nil
}

func (d *Details) UnmarshalYAML(node *yaml.Node) error {
	var wrapper map[string]yaml.Node
	if err := node.Decode(&wrapper); err != nil {
		return fmt.Errorf("details: %w", err)
	}
	if len(wrapper) != 1 {
		return fmt.Errorf("details: want exactly one variant key, got %d", len(wrapper))
	}
	for key, raw := range wrapper {
		v, err := newVariant(key)
		if err != nil {
			return err
		}
		if err := raw.Decode(v); err != nil {
			return fmt.Errorf("details %s: %w", key, err)
		}
		v.normalize()
		d.v = v
	}
	return nil
}

func newVariant(key string) (detailsVariant, error) {
	switch SymbolKind(key) {
	case KindFunction:
		return &FunctionDetails{}, nil
	case KindVariable:
		return &VariableDetails{}, nil
	case KindType:
		return &TypeDetails{}, nil
	default:
		return nil, fmt.Errorf("details: unknown variant %q", key)
	}
}
