package variant

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
)

// BestOfN generates N candidate completions concurrently from its
// candidate bindings, then asks a judge binding to pick the best one by
// index. Streaming is not supported: a judged selection requires every
// candidate to finish first.
type BestOfN struct {
	name       string
	candidates [][]router.Binding // one binding list per candidate slot
	judge      []router.Binding
}

// NewBestOfN builds a BestOfN variant. candidates holds one binding list
// per parallel candidate; judge is the binding list used to score them.
func NewBestOfN(name string, candidates [][]router.Binding, judge []router.Binding) *BestOfN {
	return &BestOfN{name: name, candidates: candidates, judge: judge}
}

func (b *BestOfN) Name() string { return b.name }

// Execute fans out one Route call per candidate slot and returns their
// Attempts in stable candidate-index order, followed by the judge call's
// Attempts, regardless of which goroutine finishes first.
func (b *BestOfN) Execute(ctx context.Context, req providers.Request) (*providers.Response, []router.Attempt, error) {
	results := make([]*providers.Response, len(b.candidates))
	errs := make([]error, len(b.candidates))
	candidateAttempts := make([][]router.Attempt, len(b.candidates))

	var wg sync.WaitGroup
	for i, bindings := range b.candidates {
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
	var successIdx []int
	for i, resp := range results {
		if errs[i] != nil || resp == nil || len(resp.Choices) == 0 {
			continue
		}
		successIdx = append(successIdx, i)
		candidateText = append(candidateText, resp.Choices[0].Message.Content)
	}
	if len(successIdx) == 0 {
		return nil, allAttempts, fmt.Errorf("variant %s: all candidates failed: %w", b.name, errs[0])
	}
	if len(successIdx) == 1 {
		return results[successIdx[0]], allAttempts, nil
	}

	judgeReq := buildJudgeRequest(req, candidateText)
	judgeResp, judgeAttempts, err := router.Route(ctx, b.judge, judgeReq)
	allAttempts = append(allAttempts, judgeAttempts...)
	if err != nil || len(judgeResp.Choices) == 0 {
		// Judge unavailable: fall back to the first successful candidate.
		return results[successIdx[0]], allAttempts, nil
	}

	chosen := parseCandidateChoice(judgeResp.Choices[0].Message.Content, len(candidateText))
	return results[successIdx[chosen]], allAttempts, nil
}

// ExecuteStream is unsupported: best-of-n requires every candidate to
// complete before the judge can select a winner.
func (b *BestOfN) ExecuteStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	return nil, router.ErrStreamingUnsupported
}

func buildJudgeRequest(orig providers.Request, candidates []string) providers.Request {
	var sb strings.Builder
	sb.WriteString("You are judging candidate responses to the following conversation. ")
	sb.WriteString("Reply with only the number of the best candidate.\n\n")
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

func parseCandidateChoice(text string, n int) int {
	fields := strings.Fields(text)
	for _, f := range fields {
		f = strings.Trim(f, ".,:;()[]")
		if idx, err := strconv.Atoi(f); err == nil && idx >= 0 && idx < n {
			return idx
		}
	}
	return 0
}
