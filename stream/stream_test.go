package stream

import (
	"errors"
	"testing"

	"github.com/tensorzero/tensorzero-sub023/providers"
)

func drain(ch <-chan Chunk) []Chunk {
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestNormalize_PlainTextChunksPassThrough(t *testing.T) {
	upstream := make(chan providers.StreamChunk, 3)
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{Content: "Hel"}}}}
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{Content: "lo"}}}}
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{FinishReason: "stop"}}}
	close(upstream)

	chunks := drain(Normalize(upstream))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Delta != "Hel" || chunks[1].Delta != "lo" {
		t.Fatalf("unexpected deltas: %+v", chunks[:2])
	}
	if chunks[2].FinishReason != "stop" {
		t.Fatalf("expected terminal finish reason, got %+v", chunks[2])
	}
}

func TestNormalize_MergesSplitToolCallArguments(t *testing.T) {
	upstream := make(chan providers.StreamChunk, 3)
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{
		ToolCalls: []providers.ToolCall{{ID: "call_1", Function: providers.FunctionCall{Name: "lookup", Arguments: `{"q":`}}},
	}}}}
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{
		ToolCalls: []providers.ToolCall{{ID: "call_1", Function: providers.FunctionCall{Arguments: `"weather"}`}}},
	}}}}
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{FinishReason: "tool_calls"}}}
	close(upstream)

	chunks := drain(Normalize(upstream))
	last := chunks[len(chunks)-1]
	if last.FinishReason != "tool_calls" {
		t.Fatalf("expected terminal chunk to carry finish reason, got %+v", last)
	}
	if len(last.ToolCalls) != 1 {
		t.Fatalf("expected exactly 1 merged tool call, got %d", len(last.ToolCalls))
	}
	if last.ToolCalls[0].Function.Arguments != `{"q":"weather"}` {
		t.Fatalf("expected merged arguments, got %q", last.ToolCalls[0].Function.Arguments)
	}
	if last.ToolCalls[0].Function.Name != "lookup" {
		t.Fatalf("expected the function name from the first chunk to be preserved, got %q", last.ToolCalls[0].Function.Name)
	}
}

// TestNormalize_GuaranteesTerminalChunk covers the "exactly one terminal
// chunk regardless of how the provider signals completion" guarantee: an
// upstream that closes without ever sending a finish_reason still produces
// one.
func TestNormalize_GuaranteesTerminalChunk(t *testing.T) {
	upstream := make(chan providers.StreamChunk, 1)
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{Content: "hi"}}}}
	close(upstream)

	chunks := drain(Normalize(upstream))
	last := chunks[len(chunks)-1]
	if last.FinishReason != "stop" {
		t.Fatalf("expected a synthesized terminal chunk, got %+v", last)
	}
}

func TestNormalize_PropagatesUpstreamError(t *testing.T) {
	upstream := make(chan providers.StreamChunk, 1)
	upstream <- providers.StreamChunk{Error: errors.New("boom")}
	close(upstream)

	chunks := drain(Normalize(upstream))
	if len(chunks) != 1 || chunks[0].Err == nil {
		t.Fatalf("expected exactly 1 error chunk, got %+v", chunks)
	}
}
