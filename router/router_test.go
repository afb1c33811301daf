package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tensorzero/tensorzero-sub023/internal/circuitbreaker"
	"github.com/tensorzero/tensorzero-sub023/providers"
)

// stubProvider is a minimal providers.Provider for exercising the router
// without a real HTTP client, following the same "func-field stub" shape
// the teacher's own provider tests use for injecting canned behavior.
type stubProvider struct {
	name  string
	calls int
	fn    func(calls int) (*providers.Response, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	s.calls++
	return s.fn(s.calls)
}

func (s *stubProvider) SupportedModels() []string         { return []string{"stub-model"} }
func (s *stubProvider) SupportsModel(model string) bool    { return true }
func (s *stubProvider) Models() []providers.ModelInfo      { return nil }

func okResponse() *providers.Response {
	return &providers.Response{
		Choices: []providers.Choice{{FinishReason: "stop", Message: providers.Message{Role: providers.RoleAssistant, Content: "hi"}}},
		Usage:   providers.Usage{PromptTokens: 5, CompletionTokens: 2},
	}
}

func TestRoute_SingleBindingSuccess(t *testing.T) {
	p := &stubProvider{name: "stub", fn: func(int) (*providers.Response, error) { return okResponse(), nil }}
	bindings := []Binding{{Name: "stub/a", Provider: p, ModelName: "a"}}

	resp, attempts, err := Route(context.Background(), bindings, providers.Request{Model: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "hi" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Err != nil || attempts[0].Response != resp {
		t.Fatalf("attempt should record the successful response, got %+v", attempts[0])
	}
}

// TestRoute_FallbackRecordsBothAttempts covers scenario S3: a first binding
// fails, a second succeeds, and both become their own Attempt in order.
func TestRoute_FallbackRecordsBothAttempts(t *testing.T) {
	failing := &stubProvider{name: "first", fn: func(int) (*providers.Response, error) {
		return nil, providers.NewHTTPError("first", 500, "boom")
	}}
	succeeding := &stubProvider{name: "second", fn: func(int) (*providers.Response, error) { return okResponse(), nil }}

	bindings := []Binding{
		{Name: "first/a", Provider: failing, ModelName: "a"},
		{Name: "second/a", Provider: succeeding, ModelName: "a"},
	}

	resp, attempts, err := Route(context.Background(), bindings, providers.Request{Model: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts (1 failed, 1 ok), got %d", len(attempts))
	}
	if attempts[0].Err == nil || attempts[0].Binding != "first/a" {
		t.Fatalf("attempt 0 should be the failed first binding, got %+v", attempts[0])
	}
	if attempts[1].Err != nil || attempts[1].Response != resp || attempts[1].Binding != "second/a" {
		t.Fatalf("attempt 1 should be the successful second binding, got %+v", attempts[1])
	}
}

func TestRoute_ExhaustedReturnsAllFailedAttempts(t *testing.T) {
	alwaysFails := &stubProvider{name: "first", fn: func(int) (*providers.Response, error) {
		return nil, providers.NewHTTPError("first", 503, "down")
	}}
	bindings := []Binding{{Name: "first/a", Provider: alwaysFails, ModelName: "a"}}

	resp, attempts, err := Route(context.Background(), bindings, providers.Request{Model: "a"})
	if resp != nil {
		t.Fatalf("expected nil response on exhaustion, got %+v", resp)
	}
	var exhausted *ErrExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", len(attempts))
	}
}

func TestRoute_OpenCircuitSkipsBindingWithoutAttempt(t *testing.T) {
	cb := circuitbreaker.New(1, 1, time.Hour)
	cb.RecordFailure() // opens after 1 failure

	skipped := &stubProvider{name: "skipped", fn: func(int) (*providers.Response, error) {
		t.Fatal("provider behind an open breaker must not be called")
		return nil, nil
	}}
	fallback := &stubProvider{name: "fallback", fn: func(int) (*providers.Response, error) { return okResponse(), nil }}

	bindings := []Binding{
		{Name: "skipped/a", Provider: skipped, ModelName: "a", CircuitBreaker: cb},
		{Name: "fallback/a", Provider: fallback, ModelName: "a"},
	}

	resp, attempts, err := Route(context.Background(), bindings, providers.Request{Model: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response from the fallback binding")
	}
	if len(attempts) != 1 {
		t.Fatalf("a circuit-skipped binding must not produce an Attempt, got %d attempts", len(attempts))
	}
}

func TestRoute_NoBindings(t *testing.T) {
	_, attempts, err := Route(context.Background(), nil, providers.Request{Model: "a"})
	if !errors.Is(err, ErrNoBindings) {
		t.Fatalf("expected ErrNoBindings, got %v", err)
	}
	if attempts != nil {
		t.Fatalf("expected no attempts, got %v", attempts)
	}
}
