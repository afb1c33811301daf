package variant

import (
	"context"
	"testing"

	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
)

func TestMixtureOfN_AttemptsPreserveCandidateOrderThenFuser(t *testing.T) {
	fuser := &fixedProvider{name: "fuser", text: "fused"}
	m := NewMixtureOfN("mon",
		[][]router.Binding{
			bindingFor("c0", &fixedProvider{name: "c0", text: "a"}),
			bindingFor("c1", &fixedProvider{name: "c1", text: "b"}),
		},
		bindingFor("fuser", fuser),
	)

	resp, attempts, err := m.Execute(context.Background(), providers.Request{Model: "mon"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "fused" {
		t.Fatalf("expected fused response, got %q", resp.Choices[0].Message.Content)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 2 candidate attempts + 1 fuser attempt, got %d", len(attempts))
	}
	wantOrder := []string{"c0", "c1", "fuser"}
	for i, want := range wantOrder {
		if attempts[i].Binding != want {
			t.Fatalf("attempt %d: expected binding %q, got %q", i, want, attempts[i].Binding)
		}
	}
}

func TestMixtureOfN_SingleCandidateSkipsFuser(t *testing.T) {
	fuser := &fixedProvider{name: "fuser", text: "fused"}
	m := NewMixtureOfN("mon",
		[][]router.Binding{bindingFor("c0", &fixedProvider{name: "c0", text: "only"})},
		bindingFor("fuser", fuser),
	)

	resp, attempts, err := m.Execute(context.Background(), providers.Request{Model: "mon"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "only" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt (fuser skipped), got %d", len(attempts))
	}
	if fuser.calls != 0 {
		t.Fatalf("fuser should not be called with a single candidate, got %d calls", fuser.calls)
	}
}

func TestMixtureOfN_AllCandidatesFail(t *testing.T) {
	m := NewMixtureOfN("mon",
		[][]router.Binding{bindingFor("c0", &failingProvider{name: "c0"})},
		bindingFor("fuser", &fixedProvider{name: "fuser", text: "fused"}),
	)
	resp, attempts, err := m.Execute(context.Background(), providers.Request{Model: "mon"})
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
