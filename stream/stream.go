// Package stream normalizes a provider's native stream channel into a
// pull-based sequence of chunks, merging tool-call argument deltas that
// arrive split across multiple chunks and guaranteeing exactly one
// terminal chunk regardless of how the upstream provider signals
// completion.
package stream

import (
	"github.com/tensorzero/tensorzero-sub023/providers"
)

// Chunk is one normalized unit of streamed output.
type Chunk struct {
	Delta        string
	ToolCalls    []providers.ToolCall
	FinishReason string
	Usage        *providers.Usage
	Err          error
}

// Normalize consumes a provider's native StreamChunk channel and returns a
// channel of normalized Chunks, merging partial tool-call argument deltas
// (keyed by tool-call index/ID, mirroring how OpenAI-compatible providers
// split a single tool call's arguments across many chunks) into complete
// ToolCall values emitted once, on the chunk that carries finish_reason.
func Normalize(upstream <-chan providers.StreamChunk) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)

		pending := map[int]*providers.ToolCall{}
		order := []int{}
		sawTerminal := false

		for raw := range upstream {
			if raw.Error != nil {
				out <- Chunk{Err: raw.Error}
				return
			}
			if len(raw.Choices) == 0 {
				continue
			}
			choice := raw.Choices[0]

			for _, tc := range choice.Delta.ToolCalls {
				idx := toolCallIndex(tc)
				existing, ok := pending[idx]
				if !ok {
					cp := tc
					pending[idx] = &cp
					order = append(order, idx)
					continue
				}
				existing.Function.Arguments += tc.Function.Arguments
				if tc.Function.Name != "" {
					existing.Function.Name = tc.Function.Name
				}
				if tc.ID != "" {
					existing.ID = tc.ID
				}
			}

			chunk := Chunk{Delta: choice.Delta.Content}
			if choice.FinishReason != "" {
				sawTerminal = true
				chunk.FinishReason = choice.FinishReason
				for _, idx := range order {
					chunk.ToolCalls = append(chunk.ToolCalls, *pending[idx])
				}
			}
			out <- chunk
		}

		if !sawTerminal {
			out <- Chunk{FinishReason: "stop"}
		}
	}()
	return out
}

func toolCallIndex(tc providers.ToolCall) int {
	if tc.ID != "" {
		return hashString(tc.ID)
	}
	return 0
}

func hashString(s string) int {
	h := 0
	for _, r := range s {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return h
}
