package variant

import (
	"context"
	"fmt"
	"sort"

	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
)

// Example is one retrievable demonstration for dynamic in-context
// learning: an input/output pair plus its embedding vector.
type Example struct {
	Input     string
	Output    string
	Embedding []float64
}

// ExampleRetriever returns the k nearest examples to a query embedding.
type ExampleRetriever interface {
	Retrieve(ctx context.Context, queryEmbedding []float64, k int) ([]Example, error)
}

// InMemoryRetriever is a cosine-similarity ExampleRetriever over a fixed
// in-process example set, suitable for tests and small deployments; a
// production deployment plugs in an external vector store behind the same
// interface.
type InMemoryRetriever struct {
	Examples []Example
}

func (r *InMemoryRetriever) Retrieve(ctx context.Context, query []float64, k int) ([]Example, error) {
	type scored struct {
		ex    Example
		score float64
	}
	scores := make([]scored, len(r.Examples))
	for i, ex := range r.Examples {
		scores[i] = scored{ex: ex, score: cosineSimilarity(query, ex.Embedding)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	out := make([]Example, k)
	for i := 0; i < k; i++ {
		out[i] = scores[i].ex
	}
	return out, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// Embedder computes the embedding vector used to query the retriever.
type Embedder func(ctx context.Context, text string) ([]float64, error)

// DynamicInContextLearning embeds the incoming request, retrieves the k
// nearest stored examples, prepends them to the prompt as few-shot
// demonstrations, and routes the augmented request through its bindings.
type DynamicInContextLearning struct {
	name      string
	bindings  []router.Binding
	retriever ExampleRetriever
	embed     Embedder
	k         int
}

// NewDynamicInContextLearning builds a DICL variant.
func NewDynamicInContextLearning(name string, bindings []router.Binding, retriever ExampleRetriever, embed Embedder, k int) *DynamicInContextLearning {
	if k <= 0 {
		k = 3
	}
	return &DynamicInContextLearning{name: name, bindings: bindings, retriever: retriever, embed: embed, k: k}
}

func (d *DynamicInContextLearning) Name() string { return d.name }

func (d *DynamicInContextLearning) augment(ctx context.Context, req providers.Request) (providers.Request, error) {
	if len(req.Messages) == 0 {
		return req, nil
	}
	query := req.Messages[len(req.Messages)-1].Content
	emb, err := d.embed(ctx, query)
	if err != nil {
		return req, fmt.Errorf("variant %s: embedding query: %w", d.name, err)
	}
	examples, err := d.retriever.Retrieve(ctx, emb, d.k)
	if err != nil {
		return req, fmt.Errorf("variant %s: retrieving examples: %w", d.name, err)
	}

	augmented := make([]providers.Message, 0, len(examples)*2+len(req.Messages))
	for _, ex := range examples {
		augmented = append(augmented,
			providers.Message{Role: providers.RoleUser, Content: ex.Input},
			providers.Message{Role: providers.RoleAssistant, Content: ex.Output},
		)
	}
	augmented = append(augmented, req.Messages...)
	req.Messages = augmented
	return req, nil
}

func (d *DynamicInContextLearning) Execute(ctx context.Context, req providers.Request) (*providers.Response, []router.Attempt, error) {
	augmented, err := d.augment(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return router.Route(ctx, d.bindings, augmented)
}

func (d *DynamicInContextLearning) ExecuteStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	augmented, err := d.augment(ctx, req)
	if err != nil {
		return nil, err
	}
	return router.RouteStream(ctx, d.bindings, augmented)
}
