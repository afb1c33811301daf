// Package function implements the Function Dispatcher: resolution of a
// function by name, input/output schema validation, and variant selection
// under a configured experimentation policy.
package function

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tensorzero/tensorzero-sub023/internal/bandit"
)

// Type distinguishes the two function shapes: free-form chat output versus
// a JSON object validated against an output schema.
type Type string

const (
	TypeChat Type = "chat"
	TypeJSON Type = "json"
)

// VariantConfig names a variant registered under a function along with its
// static selection weight (used by the UniformWeighted policy).
type VariantConfig struct {
	Name   string
	Weight float64
}

// Function is a single named, schema-validated endpoint of the gateway,
// frozen for the lifetime of the process once loaded.
type Function struct {
	Name         string
	Type         Type
	Variants     []VariantConfig
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
	policy       ExperimentationPolicy
}

// ValidateInput checks arguments for a named template role against the
// function's declared input schema, if any.
func (f *Function) ValidateInput(data interface{}) error {
	if f.inputSchema == nil {
		return nil
	}
	if err := f.inputSchema.Validate(data); err != nil {
		return fmt.Errorf("function %s: input failed schema validation: %w", f.Name, err)
	}
	return nil
}

// ValidateOutput checks a json-type function's parsed output against its
// declared output schema. No-op for chat functions.
func (f *Function) ValidateOutput(data interface{}) error {
	if f.Type != TypeJSON || f.outputSchema == nil {
		return nil
	}
	if err := f.outputSchema.Validate(data); err != nil {
		return fmt.Errorf("function %s: output failed schema validation: %w", f.Name, err)
	}
	return nil
}

// SelectVariant returns the name of the variant to use for one inference
// request, chosen by the function's configured experimentation policy.
func (f *Function) SelectVariant() string {
	return f.policy.Select()
}

// RecordFeedback routes a scalar reward for a variant back into the
// function's experimentation policy (a no-op under UniformWeighted).
func (f *Function) RecordFeedback(variant string, reward float64) {
	f.policy.Update(variant, reward)
}

// ExperimentationPolicy selects among a function's variants for each new
// inference and incorporates feedback-derived rewards into future
// selections.
type ExperimentationPolicy interface {
	Select() string
	Update(variant string, reward float64)
}

// UniformWeighted selects a variant with probability proportional to its
// configured static weight, generalizing the gateway's weighted
// load-balance target selection from provider targets to variants.
type UniformWeighted struct {
	mu      sync.Mutex
	names   []string
	weights []float64
	rng     *rand.Rand
}

// NewUniformWeighted builds a UniformWeighted policy from variant configs.
// Variants with a non-positive weight default to weight 1.
func NewUniformWeighted(variants []VariantConfig) *UniformWeighted {
	names := make([]string, len(variants))
	weights := make([]float64, len(variants))
	for i, v := range variants {
		names[i] = v.Name
		w := v.Weight
		if w <= 0 {
			w = 1
		}
		weights[i] = w
	}
	return &UniformWeighted{names: names, weights: weights, rng: rand.New(rand.NewSource(1))} //nolint:gosec
}

func (u *UniformWeighted) Select() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.names) == 0 {
		return ""
	}
	total := 0.0
	for _, w := range u.weights {
		total += w
	}
	if total <= 0 {
		return u.names[0]
	}
	r := u.rng.Float64() * total
	cumulative := 0.0
	for i, w := range u.weights {
		cumulative += w
		if r < cumulative {
			return u.names[i]
		}
	}
	return u.names[len(u.names)-1]
}

// Update is a no-op: static weights are not adjusted by feedback.
func (u *UniformWeighted) Update(string, float64) {}

// Bandit adapts internal/bandit.Policy to ExperimentationPolicy.
type Bandit struct {
	policy *bandit.Policy
}

// NewBandit builds a Bandit policy over the given variant names.
func NewBandit(variants []VariantConfig) *Bandit {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name
	}
	return &Bandit{policy: bandit.New(names)}
}

func (b *Bandit) Select() string                    { return b.policy.Select() }
func (b *Bandit) Update(variant string, reward float64) { b.policy.Update(variant, reward) }

// compileSchema is a small helper shared by NewRegistry to turn a raw
// JSON Schema document into a compiled *jsonschema.Schema.
func compileSchema(name string, doc json.RawMessage) (*jsonschema.Schema, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}
