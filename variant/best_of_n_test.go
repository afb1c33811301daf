package variant

import (
	"context"
	"fmt"
	"testing"

	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
)

// fixedProvider always returns the same canned text, recording how many
// times it was called.
type fixedProvider struct {
	name  string
	text  string
	calls int
}

func (f *fixedProvider) Name() string { return f.name }

func (f *fixedProvider) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	f.calls++
	return &providers.Response{
		Provider: f.name,
		Choices:  []providers.Choice{{FinishReason: "stop", Message: providers.Message{Role: providers.RoleAssistant, Content: f.text}}},
		Usage:    providers.Usage{PromptTokens: 1, CompletionTokens: 1},
	}, nil
}

func (f *fixedProvider) SupportedModels() []string      { return []string{f.name} }
func (f *fixedProvider) SupportsModel(model string) bool { return true }
func (f *fixedProvider) Models() []providers.ModelInfo   { return nil }

func bindingFor(name string, p providers.Provider) []router.Binding {
	return []router.Binding{{Name: name, Provider: p, ModelName: name}}
}

// TestBestOfN_AttemptsPreserveCandidateOrder covers §5's stable candidate
// index requirement: even though candidates run concurrently, the
// returned attempts must come back ordered by candidate slot, judge last.
func TestBestOfN_AttemptsPreserveCandidateOrder(t *testing.T) {
	judge := &fixedProvider{name: "judge", text: "1"}
	b := NewBestOfN("bon",
		[][]router.Binding{
			bindingFor("c0", &fixedProvider{name: "c0", text: "first"}),
			bindingFor("c1", &fixedProvider{name: "c1", text: "second"}),
			bindingFor("c2", &fixedProvider{name: "c2", text: "third"}),
		},
		bindingFor("judge", judge),
	)

	resp, attempts, err := b.Execute(context.Background(), providers.Request{Model: "bon", Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "second" {
		t.Fatalf("expected judge to pick candidate 1, got %q", resp.Choices[0].Message.Content)
	}
	if len(attempts) != 4 {
		t.Fatalf("expected 3 candidate attempts + 1 judge attempt, got %d", len(attempts))
	}
	wantOrder := []string{"c0", "c1", "c2", "judge"}
	for i, want := range wantOrder {
		if attempts[i].Binding != want {
			t.Fatalf("attempt %d: expected binding %q, got %q", i, want, attempts[i].Binding)
		}
	}
}

func TestBestOfN_SingleSuccessSkipsJudge(t *testing.T) {
	judge := &fixedProvider{name: "judge", text: "0"}
	b := NewBestOfN("bon",
		[][]router.Binding{bindingFor("c0", &fixedProvider{name: "c0", text: "only"})},
		bindingFor("judge", judge),
	)

	resp, attempts, err := b.Execute(context.Background(), providers.Request{Model: "bon"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "only" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt (judge skipped), got %d", len(attempts))
	}
	if judge.calls != 0 {
		t.Fatalf("judge should not be called with a single candidate, got %d calls", judge.calls)
	}
}

// failingProvider always errors.
type failingProvider struct{ name string }

func (f *failingProvider) Name() string { return f.name }
func (f *failingProvider) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	return nil, fmt.Errorf("%s: always fails", f.name)
}
func (f *failingProvider) SupportedModels() []string      { return nil }
func (f *failingProvider) SupportsModel(model string) bool { return true }
func (f *failingProvider) Models() []providers.ModelInfo   { return nil }

func TestBestOfN_AllCandidatesFail(t *testing.T) {
	b := NewBestOfN("bon",
		[][]router.Binding{bindingFor("c0", &failingProvider{name: "c0"})},
		bindingFor("judge", &fixedProvider{name: "judge", text: "0"}),
	)
	resp, attempts, err := b.Execute(context.Background(), providers.Request{Model: "bon"})
	if err == nil {
		t.Fatal("expected an error when every candidate fails")
	}
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected the one failed candidate attempt to be recorded, got %d", len(attempts))
	}
}
