package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tensorzero/tensorzero-sub023/function"
	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/values"
)

// decodeInput parses req.System (if present) into a generic value for
// schema validation; the message history is validated block-by-block at
// render time instead, since each template block carries its own schema.
func decodeInput(in values.Input, out *interface{}) error {
	if len(in.System) == 0 {
		return nil
	}
	if err := json.Unmarshal(in.System, out); err != nil {
		return fmt.Errorf("inference: system input is not valid JSON: %w", err)
	}
	return nil
}

// render turns a typed Input into a provider-ready Request: each message's
// content blocks are flattened to plain text, resolving template blocks
// through the variant's named template (the template name must match one
// compiled into the Engine at config-load time).
func (p *Pipeline) render(variantName string, in values.Input) (providers.Request, error) {
	var req providers.Request
	if len(in.System) > 0 {
		var sys string
		if err := json.Unmarshal(in.System, &sys); err == nil && sys != "" {
			req.Messages = append(req.Messages, providers.Message{Role: "system", Content: sys})
		}
	}

	for _, msg := range in.Messages {
		text, err := p.renderBlocks(variantName, msg.Content)
		if err != nil {
			return providers.Request{}, err
		}
		req.Messages = append(req.Messages, providers.Message{Role: string(msg.Role), Content: text})
	}
	return req, nil
}

func (p *Pipeline) renderBlocks(variantName string, blocks []values.ContentBlock) (string, error) {
	var b strings.Builder
	for _, block := range blocks {
		switch block.Kind() {
		case values.KindText:
			b.WriteString(block.Text.Text)
		case values.KindRawText:
			b.WriteString(block.RawText.Value)
		case values.KindTemplate:
			name := block.Template.Name
			if name == "" {
				name = variantName
			}
			rendered, err := p.Engine.Render(name, block.Template.Arguments)
			if err != nil {
				return "", err
			}
			b.WriteString(rendered)
		case values.KindToolResult:
			b.WriteString(block.ToolResult.Result)
		case values.KindThought:
			// Thoughts are not sent to the model; they record the model's
			// own reasoning trace from a prior turn.
		default:
			return "", fmt.Errorf("inference: unsupported content block kind %q in request rendering", block.Kind())
		}
	}
	return b.String(), nil
}

// toOutput converts a provider Response into a typed Output. JSON
// functions additionally parse the first choice's content as the
// function's structured result; chat functions keep it as a single text
// content block.
func toOutput(fnType function.Type, resp *providers.Response) (values.Output, error) {
	if len(resp.Choices) == 0 {
		return values.Output{}, fmt.Errorf("inference: provider response has no choices")
	}
	raw := resp.Choices[0].Message.Content

	if fnType == function.TypeJSON {
		var parsed json.RawMessage
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return values.Output{Raw: raw}, fmt.Errorf("inference: output is not valid JSON: %w", err)
		}
		return values.Output{Parsed: parsed, Raw: raw}, nil
	}
	return values.Output{Content: []values.ContentBlock{values.Text(raw)}}, nil
}

func parsedOf(out values.Output) interface{} {
	if len(out.Parsed) == 0 {
		return nil
	}
	var v interface{}
	_ = json.Unmarshal(out.Parsed, &v)
	return v
}

func marshalInput(in values.Input) ([]byte, error)              { return json.Marshal(in) }
func marshalOutput(out values.Output) ([]byte, error)            { return json.Marshal(out) }
func marshalRequest(req providers.Request) ([]byte, error)       { return json.Marshal(req) }
func marshalResponse(resp *providers.Response) ([]byte, error)   { return json.Marshal(resp) }
