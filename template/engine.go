// Package template renders typed function arguments into provider-ready
// text using Go's text/template in a restricted mode: no functions beyond
// text/template's builtins are exposed to templates, and referencing an
// undeclared variable is a hard error rather than a silent empty string.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Engine compiles and caches templates and their associated argument
// schemas, keyed by name; the gateway keeps one Engine holding every
// variant's template under the variant name. Instances are built once at config-load
// time and are safe for concurrent use by many in-flight requests.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	schemas   map[string]*jsonschema.Schema
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		templates: make(map[string]*template.Template),
		schemas:   make(map[string]*jsonschema.Schema),
	}
}

// Compile parses and registers a named template. source is the Go
// text/template source; schemaJSON, if non-empty, is a JSON Schema document
// that Render will validate the template's arguments against before
// rendering.
func (e *Engine) Compile(name, source string, schemaJSON json.RawMessage) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(source)
	if err != nil {
		return fmt.Errorf("template: compiling %q: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[name] = tmpl

	if len(schemaJSON) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("template: loading schema for %q: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("template: compiling schema for %q: %w", name, err)
	}
	e.schemas[name] = schema
	return nil
}

// Render validates arguments against the named template's schema (if one
// was registered) and executes the template against them, returning the
// rendered text.
func (e *Engine) Render(name string, arguments json.RawMessage) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	schema := e.schemas[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template: unknown template %q", name)
	}

	var data interface{}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &data); err != nil {
			return "", fmt.Errorf("template: arguments for %q are not valid JSON: %w", name, err)
		}
	}

	if schema != nil {
		if err := schema.Validate(data); err != nil {
			return "", fmt.Errorf("template: arguments for %q failed schema validation: %w", name, err)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template: rendering %q: %w", name, err)
	}
	return buf.String(), nil
}

// Has reports whether a template with the given name has been compiled.
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[name]
	return ok
}
