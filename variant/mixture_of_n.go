package variant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
)

// MixtureOfN generates N candidate completions concurrently, then asks a
// fuser binding to synthesize a single response informed by all of them
// (as opposed to BestOfN, which selects one candidate verbatim).
type MixtureOfN struct {
	name       string
	candidates [][]router.Binding
	fuser      []router.Binding
}

// NewMixtureOfN builds a MixtureOfN variant.
func NewMixtureOfN(name string, candidates [][]router.Binding, fuser []router.Binding) *MixtureOfN {
	return &MixtureOfN{name: name, candidates: candidates, fuser: fuser}
}

func (m *MixtureOfN) Name() string { return m.name }

// Execute fans out one Route call per candidate slot and returns their
// Attempts in stable candidate-index order, followed by the fuser call's
// Attempts, regardless of which goroutine finishes first.
func (m *MixtureOfN) Execute(ctx context.Context, req providers.Request) (*providers.Response, []router.Attempt, error) {
	results := make([]*providers.Response, len(m.candidates))
	errs := make([]error, len(m.candidates))
	candidateAttempts := make([][]router.Attempt, len(m.candidates))

	var wg sync.WaitGroup
	for i, bindings := range m.candidates {
		wg.Add(1)
		go func(i int, bindings []router.Binding) {
			defer wg.Done()
			resp, attempts, err := router.Route(ctx, bindings, req)
			results[i] = resp
			errs[i] = err
			candidateAttempts[i] = attempts
		}(i, bindings)
	}
	wg.Wait()

	var allAttempts []router.Attempt
	for _, a := range candidateAttempts {
		allAttempts = append(allAttempts, a...)
	}

	var candidateText []string
	var firstOK *providers.Response
	for i, resp := range results {
		if errs[i] != nil || resp == nil || len(resp.Choices) == 0 {
			continue
		}
		if firstOK == nil {
			firstOK = resp
		}
		candidateText = append(candidateText, resp.Choices[0].Message.Content)
	}
	if len(candidateText) == 0 {
		return nil, allAttempts, fmt.Errorf("variant %s: all candidates failed: %w", m.name, errs[0])
	}
	if len(candidateText) == 1 {
		return firstOK, allAttempts, nil
	}

	fuseReq := buildFuseRequest(req, candidateText)
	fused, fuseAttempts, err := router.Route(ctx, m.fuser, fuseReq)
	allAttempts = append(allAttempts, fuseAttempts...)
	if err != nil {
		return firstOK, allAttempts, nil
	}
	return fused, allAttempts, nil
}

// ExecuteStream is unsupported for the same reason as BestOfN: the fuser
// needs every candidate's complete output.
func (m *MixtureOfN) ExecuteStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	return nil, router.ErrStreamingUnsupported
}

func buildFuseRequest(orig providers.Request, candidates []string) providers.Request {
	var sb strings.Builder
	sb.WriteString("Synthesize the best possible single response from the following candidate responses ")
	sb.WriteString("to the same conversation. Do not mention that candidates were provided.\n\n")
	for i, c := range candidates {
		sb.WriteString(fmt.Sprintf("<candidate %d>\n%s\n</candidate %d>\n\n", i, c, i))
	}
	return providers.Request{
		Model: orig.Model,
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: sb.String()},
		},
	}
}
