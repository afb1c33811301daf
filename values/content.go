// Package values defines the typed content model shared by functions,
// variants, providers, and the persistence layer: a closed set of content
// block kinds that make up inference input and output, plus the file-block
// type that defers remote fetches behind a memoized future.
package values

import (
	"encoding/json"
	"fmt"
	"sync"
)

// BlockKind identifies which variant of ContentBlock a value holds.
type BlockKind string

// The closed set of content block kinds. Adding a kind here is the only
// supported way to extend the typed value model; callers switching on
// Kind() should always carry a default case.
const (
	KindText       BlockKind = "text"
	KindTemplate   BlockKind = "template"
	KindToolCall   BlockKind = "tool_call"
	KindToolResult BlockKind = "tool_result"
	KindRawText    BlockKind = "raw_text"
	KindThought    BlockKind = "thought"
	KindFile       BlockKind = "file"
	KindUnknown    BlockKind = "unknown"
)

// ContentBlock is a single typed unit of inference input or output.
// Exactly one of the typed fields is populated, selected by Kind.
type ContentBlock struct {
	kind BlockKind

	Text       *TextBlock
	Template   *TemplateBlock
	ToolCall   *ToolCallBlock
	ToolResult *ToolResultBlock
	RawText    *RawTextBlock
	Thought    *ThoughtBlock
	File       *FileBlock
}

// Kind reports which variant is populated.
func (b ContentBlock) Kind() BlockKind { return b.kind }

// TextBlock is plain, already-resolved text.
type TextBlock struct {
	Text string `json:"text"`
}

// TemplateBlock carries a template name and typed arguments to be resolved
// by the template engine against a function's configured schema.
type TemplateBlock struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallBlock is a model-issued request to invoke a tool.
type ToolCallBlock struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RawArguments string `json:"arguments"` // un-parsed JSON object
}

// ToolResultBlock is the caller-supplied result of a prior tool call.
type ToolResultBlock struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
}

// RawTextBlock bypasses the template engine entirely: it is concatenated
// verbatim into the rendered message with no escaping.
type RawTextBlock struct {
	Value string `json:"value"`
}

// ThoughtBlock carries a model's reasoning/thinking trace, kept separate
// from externally visible text.
type ThoughtBlock struct {
	Text string `json:"text"`
}

// FileBlock references a file (typically an image) that may need to be
// fetched from object storage before it can be sent to a provider.
type FileBlock struct {
	MimeType string `json:"mime_type"`
	URL      string `json:"url,omitempty"`
	mu       sync.Mutex
	fetch    *LazyFile
}

// Lazy returns a shared, memoized future for the file's bytes. Multiple
// concurrent goroutines sharing the same ContentBlock (e.g. best-of-n
// candidates built from the same input) trigger exactly one fetch.
func (f *FileBlock) Lazy(fetch func() ([]byte, error)) *LazyFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetch == nil {
		f.fetch = newLazyFile(fetch)
	}
	return f.fetch
}

// LazyFile memoizes a single object-store fetch so concurrent consumers
// share one round trip instead of issuing one each.
type LazyFile struct {
	once   sync.Once
	fn     func() ([]byte, error)
	data   []byte
	err    error
}

func newLazyFile(fn func() ([]byte, error)) *LazyFile {
	return &LazyFile{fn: fn}
}

// Get blocks until the fetch completes (or returns immediately once it has).
func (l *LazyFile) Get() ([]byte, error) {
	l.once.Do(func() {
		l.data, l.err = l.fn()
	})
	return l.data, l.err
}

// Text constructs a text content block.
func Text(s string) ContentBlock {
	return ContentBlock{kind: KindText, Text: &TextBlock{Text: s}}
}

// Raw constructs a raw-text content block.
func Raw(s string) ContentBlock {
	return ContentBlock{kind: KindRawText, RawText: &RawTextBlock{Value: s}}
}

// Template constructs a template content block.
func Template(name string, args json.RawMessage) ContentBlock {
	return ContentBlock{kind: KindTemplate, Template: &TemplateBlock{Name: name, Arguments: args}}
}

// wireBlock is the tagged-by-shape JSON encoding: a "type" discriminant
// plus the variant's own fields inlined, matching the style the provider
// layer already uses for Message content (string-or-array dispatch)
// generalized to a tagged union for persistence round-tripping.
type wireBlock struct {
	Type string `json:"type"`

	Text         string          `json:"text,omitempty"`
	Name         string          `json:"name,omitempty"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	ID           string          `json:"id,omitempty"`
	RawArguments string          `json:"raw_arguments,omitempty"`
	Result       string          `json:"result,omitempty"`
	Value        string          `json:"value,omitempty"`
	MimeType     string          `json:"mime_type,omitempty"`
	URL          string          `json:"url,omitempty"`
}

// MarshalJSON encodes the populated variant tagged by its Kind.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	w := wireBlock{Type: string(b.kind)}
	switch b.kind {
	case KindText:
		w.Text = b.Text.Text
	case KindTemplate:
		w.Name = b.Template.Name
		w.Arguments = b.Template.Arguments
	case KindToolCall:
		w.ID = b.ToolCall.ID
		w.Name = b.ToolCall.Name
		w.RawArguments = b.ToolCall.RawArguments
	case KindToolResult:
		w.ID = b.ToolResult.ID
		w.Name = b.ToolResult.Name
		w.Result = b.ToolResult.Result
	case KindRawText:
		w.Value = b.RawText.Value
	case KindThought:
		w.Text = b.Thought.Text
	case KindFile:
		w.MimeType = b.File.MimeType
		w.URL = b.File.URL
	default:
		return nil, fmt.Errorf("values: cannot marshal unknown content block")
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a tagged content block, falling back to KindUnknown
// for a recognized-but-unhandled type so forward compatibility doesn't
// require every reader to be updated in lockstep.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch BlockKind(w.Type) {
	case KindText:
		*b = ContentBlock{kind: KindText, Text: &TextBlock{Text: w.Text}}
	case KindTemplate:
		*b = ContentBlock{kind: KindTemplate, Template: &TemplateBlock{Name: w.Name, Arguments: w.Arguments}}
	case KindToolCall:
		*b = ContentBlock{kind: KindToolCall, ToolCall: &ToolCallBlock{ID: w.ID, Name: w.Name, RawArguments: w.RawArguments}}
	case KindToolResult:
		*b = ContentBlock{kind: KindToolResult, ToolResult: &ToolResultBlock{ID: w.ID, Name: w.Name, Result: w.Result}}
	case KindRawText:
		*b = ContentBlock{kind: KindRawText, RawText: &RawTextBlock{Value: w.Value}}
	case KindThought:
		*b = ContentBlock{kind: KindThought, Thought: &ThoughtBlock{Text: w.Text}}
	case KindFile:
		*b = ContentBlock{kind: KindFile, File: &FileBlock{MimeType: w.MimeType, URL: w.URL}}
	default:
		*b = ContentBlock{kind: KindUnknown}
	}
	return nil
}
