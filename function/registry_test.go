package function

import (
	"encoding/json"
	"testing"
)

func TestNewRegistry_RejectsMissingName(t *testing.T) {
	_, err := NewRegistry([]Spec{{Variants: []VariantConfig{{Name: "v1"}}}})
	if err == nil {
		t.Fatal("expected an error for a spec with no name")
	}
}

func TestNewRegistry_RejectsNoVariants(t *testing.T) {
	_, err := NewRegistry([]Spec{{Name: "f"}})
	if err == nil {
		t.Fatal("expected an error for a spec with zero variants")
	}
}

func TestNewRegistry_DefaultsToUniformWeighted(t *testing.T) {
	r, err := NewRegistry([]Spec{{Name: "f", Type: TypeChat, Variants: []VariantConfig{{Name: "v1", Weight: 1}}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn, ok := r.Get("f")
	if !ok {
		t.Fatal("expected function f to be registered")
	}
	if _, ok := fn.policy.(*UniformWeighted); !ok {
		t.Fatalf("expected default policy to be UniformWeighted, got %T", fn.policy)
	}
	if got := fn.SelectVariant(); got != "v1" {
		t.Fatalf("expected the only variant to be selected, got %q", got)
	}
}

func TestNewRegistry_BanditPolicy(t *testing.T) {
	r, err := NewRegistry([]Spec{{
		Name:     "f",
		Type:     TypeChat,
		Policy:   "bandit",
		Variants: []VariantConfig{{Name: "a"}, {Name: "b"}},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn, _ := r.Get("f")
	if _, ok := fn.policy.(*Bandit); !ok {
		t.Fatalf("expected Bandit policy, got %T", fn.policy)
	}
	fn.RecordFeedback("a", 1.0)
	if got := fn.SelectVariant(); got != "a" && got != "b" {
		t.Fatalf("expected a known variant name, got %q", got)
	}
}

func TestNewRegistry_CompilesSchemas(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["x"]}`)
	r, err := NewRegistry([]Spec{{
		Name:        "f",
		Type:        TypeJSON,
		Variants:    []VariantConfig{{Name: "v1"}},
		InputSchema: schema,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn, _ := r.Get("f")
	if err := fn.ValidateInput(map[string]interface{}{}); err == nil {
		t.Fatal("expected schema validation to reject input missing required field x")
	}
	if err := fn.ValidateInput(map[string]interface{}{"x": 1}); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestNewRegistry_InvalidSchemaFailsAtLoadTime(t *testing.T) {
	_, err := NewRegistry([]Spec{{
		Name:        "f",
		Variants:    []VariantConfig{{Name: "v1"}},
		InputSchema: json.RawMessage(`not json`),
	}})
	if err == nil {
		t.Fatal("expected a malformed schema to fail at registry construction")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r, err := NewRegistry([]Spec{{Name: "f", Variants: []VariantConfig{{Name: "v1"}}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected Get to report false for an unknown function")
	}
}

func TestUniformWeighted_RespectsWeightZeroOrNegativeDefaultsToOne(t *testing.T) {
	p := NewUniformWeighted([]VariantConfig{{Name: "a", Weight: 0}, {Name: "b", Weight: -1}})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[p.Select()] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both zero/negative-weight variants selectable, got %v", seen)
	}
}
