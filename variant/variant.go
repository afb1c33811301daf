// Package variant implements the Variant Executor: the strategies by which
// a function turns typed input into a model response — a single chat
// completion, a best-of-n judged selection, a mixture-of-n fusion, or a
// dynamic in-context-learning example-augmented completion.
package variant

import (
	"context"

	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
	"github.com/tensorzero/tensorzero-sub023/template"
)

// Variant executes one inference strategy against a set of model bindings.
// Execute returns, alongside the winning response, every router.Attempt
// made along the way (candidate calls, judge/fuser calls, retries and
// fallbacks alike) in a stable order so the caller can persist one
// ModelInference row per actual provider call.
type Variant interface {
	Name() string
	Execute(ctx context.Context, req providers.Request) (*providers.Response, []router.Attempt, error)
	ExecuteStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error)
}

// ChatCompletion is the simplest variant: it routes the already-rendered
// request through its bindings, unmodified. Template rendering happens in
// the inference pipeline before Execute is called.
type ChatCompletion struct {
	name     string
	bindings []router.Binding
	engine   *template.Engine
}

// NewChatCompletion builds a ChatCompletion variant.
func NewChatCompletion(name string, bindings []router.Binding, engine *template.Engine) *ChatCompletion {
	return &ChatCompletion{name: name, bindings: bindings, engine: engine}
}

func (c *ChatCompletion) Name() string { return c.name }

func (c *ChatCompletion) Execute(ctx context.Context, req providers.Request) (*providers.Response, []router.Attempt, error) {
	return router.Route(ctx, c.bindings, req)
}

func (c *ChatCompletion) ExecuteStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	return router.RouteStream(ctx, c.bindings, req)
}
