package variant

import (
	"context"
	"errors"
	"testing"

	"github.com/tensorzero/tensorzero-sub023/providers"
)

func TestInMemoryRetriever_ReturnsNearestByCosineSimilarity(t *testing.T) {
	r := &InMemoryRetriever{Examples: []Example{
		{Input: "far", Output: "far-out", Embedding: []float64{0, 1}},
		{Input: "near", Output: "near-out", Embedding: []float64{1, 0}},
	}}
	got, err := r.Retrieve(context.Background(), []float64{1, 0.01}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Input != "near" {
		t.Fatalf("expected the near example first, got %+v", got)
	}
}

func TestInMemoryRetriever_ClampsKToAvailableExamples(t *testing.T) {
	r := &InMemoryRetriever{Examples: []Example{{Input: "a", Embedding: []float64{1}}}}
	got, err := r.Retrieve(context.Background(), []float64{1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected k clamped to 1 available example, got %d", len(got))
	}
}

func TestDynamicInContextLearning_AugmentsWithRetrievedExamples(t *testing.T) {
	retriever := &InMemoryRetriever{Examples: []Example{
		{Input: "2+2?", Output: "4", Embedding: []float64{1, 0}},
	}}
	embed := func(ctx context.Context, text string) ([]float64, error) { return []float64{1, 0}, nil }
	provider := &fixedProvider{name: "p", text: "answer"}

	d := NewDynamicInContextLearning("dicl", bindingFor("p", provider), retriever, embed, 1)
	resp, attempts, err := d.Execute(context.Background(), providers.Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "3+3?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "answer" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	sent := attempts[0].Request.Messages
	if len(sent) != 3 {
		t.Fatalf("expected the example pair prepended to the original message, got %d messages", len(sent))
	}
	if sent[0].Content != "2+2?" || sent[1].Content != "4" {
		t.Fatalf("expected the retrieved example first, got %+v", sent[:2])
	}
}

func TestDynamicInContextLearning_EmbeddingErrorSurfacesNoAttempts(t *testing.T) {
	retriever := &InMemoryRetriever{}
	embed := func(ctx context.Context, text string) ([]float64, error) {
		return nil, errBoom
	}
	d := NewDynamicInContextLearning("dicl", bindingFor("p", &fixedProvider{name: "p", text: "x"}), retriever, embed, 1)

	resp, attempts, err := d.Execute(context.Background(), providers.Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected the embedding error to propagate")
	}
	if resp != nil || attempts != nil {
		t.Fatalf("expected no response or attempts on embedding failure, got resp=%+v attempts=%v", resp, attempts)
	}
}

var errBoom = errors.New("embedding unavailable")
