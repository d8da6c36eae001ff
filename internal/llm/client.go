// Package llm defines the narrow contract agents and the manager use to
// call a language model, independent of which provider backs it.
package llm

import "context"

// Role identifies who produced a Message in a conversation passed to the
// model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Usage reports token accounting for a completed call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ToolDef describes one tool the model may call, in the shape every
// provider's function-calling API expects: a name, a description, and a
// JSON Schema for its arguments.
type ToolDef struct {
	Name        string
	Description string
	Schema      []byte
}

// ToolCall is one invocation the model asked for in place of (or alongside)
// a text response.
type ToolCall struct {
	ID   string
	Name string
	// Args is the JSON-encoded argument object the model produced.
	Args string
}

// Result is what both Create and the final element of CreateStream
// resolve to. A Result with a non-empty ToolCalls and empty Content means
// the model chose to call tools instead of answering in text.
type Result struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Options configures a single call.
type Options struct {
	// JSONSchema, if set, makes the OpenAI adapter request JSON-object
	// output; the schema itself is not sent, and the Anthropic adapter
	// ignores the field. No caller in this module sets it.
	JSONSchema []byte
	// Tools, if set, are offered to the model for function calling; the
	// agent container is the only caller that sets this.
	Tools     []ToolDef
	Model     string
	MaxTokens int
}

// Chunk is one piece of a streamed response. Final is set on the last
// chunk, which also carries the complete Result.
type Chunk struct {
	Delta   string
	Final   bool
	Result  Result
}

// StreamIterator yields Chunks until the stream ends or ctx is canceled.
type StreamIterator interface {
	// Next advances to the next chunk, returning false when the stream is
	// exhausted or an error occurred (check Err after Next returns false).
	Next() bool
	Current() Chunk
	Err() error
	Close() error
}

// Client is the contract agents and plugins use to call a language model.
type Client interface {
	Create(ctx context.Context, messages []Message, opts Options) (Result, error)
	CreateStream(ctx context.Context, messages []Message, opts Options) (StreamIterator, error)
}
