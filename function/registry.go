package function

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Spec is the declarative description of one function, as it appears in
// the gateway's configuration document, before schemas are compiled and
// an experimentation policy is attached.
type Spec struct {
	Name          string
	Type          Type
	Variants      []VariantConfig
	InputSchema   json.RawMessage
	OutputSchema  json.RawMessage
	Policy        string // "uniform_weighted" (default) or "bandit"
}

// Registry resolves function names to Functions. It is built once from a
// set of Specs via NewRegistry and is immutable (safe for concurrent reads)
// thereafter; reconfiguration replaces the whole Registry rather than
// mutating it in place.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]*Function
}

// NewRegistry builds a Registry from specs, compiling every schema and
// constructing every function's experimentation policy up front so a
// malformed schema fails fast at load time rather than on first request.
func NewRegistry(specs []Spec) (*Registry, error) {
	functions := make(map[string]*Function, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("function: spec missing name")
		}
		if len(s.Variants) == 0 {
			return nil, fmt.Errorf("function %s: at least one variant is required", s.Name)
		}

		inputSchema, err := compileSchema(s.Name+"#input", s.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("function %s: compiling input schema: %w", s.Name, err)
		}
		outputSchema, err := compileSchema(s.Name+"#output", s.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("function %s: compiling output schema: %w", s.Name, err)
		}

		var policy ExperimentationPolicy
		switch s.Policy {
		case "bandit":
			policy = NewBandit(s.Variants)
		default:
			policy = NewUniformWeighted(s.Variants)
		}

		functions[s.Name] = &Function{
			Name:         s.Name,
			Type:         s.Type,
			Variants:     s.Variants,
			inputSchema:  inputSchema,
			outputSchema: outputSchema,
			policy:       policy,
		}
	}
	return &Registry{functions: functions}, nil
}

// Get resolves a function by name.
func (r *Registry) Get(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.functions[name]
	return f, ok
}

// Names returns every registered function name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for n := range r.functions {
		names = append(names, n)
	}
	return names
}
