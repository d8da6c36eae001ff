// Package anthropicclient adapts github.com/anthropics/anthropic-sdk-go to
// the llm.Client interface.
package anthropicclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/groupchat/internal/llm"
)

// DefaultModel is used when an Options.Model is not supplied.
const DefaultModel = "claude-sonnet-4-5-20250929"

// DefaultMaxTokens is used when Options.MaxTokens is zero.
const DefaultMaxTokens = 4096

// Client wraps an anthropic.Client.
type Client struct {
	sdk anthropic.Client
}

// New returns a Client authenticated with apiKey.
func New(apiKey string) *Client {
	return &Client{sdk: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func toParams(messages []llm.Message, opts llm.Options) anthropic.MessageNewParams {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
	}

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			params.System = []anthropic.TextBlockParam{{Text: m.Content}}
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	for _, t := range opts.Tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Schema) > 0 {
			var raw map[string]any
			if err := json.Unmarshal(t.Schema, &raw); err == nil {
				if props, ok := raw["properties"]; ok {
					schema.Properties = props
				}
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return params
}

func toolCallsFrom(blocks []anthropic.ContentBlockUnion) []llm.ToolCall {
	var calls []llm.ToolCall
	for _, block := range blocks {
		if block.Type != "tool_use" {
			continue
		}
		calls = append(calls, llm.ToolCall{
			ID:   block.ID,
			Name: block.Name,
			Args: string(block.Input),
		})
	}
	return calls
}

// Create sends messages and returns the complete response.
func (c *Client) Create(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Result, error) {
	params := toParams(messages, opts)
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.Result{}, fmt.Errorf("anthropic: create message: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return llm.Result{
		Content:   content,
		ToolCalls: toolCallsFrom(resp.Content),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// CreateStream sends messages and streams the response incrementally.
func (c *Client) CreateStream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.StreamIterator, error) {
	params := toParams(messages, opts)
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	return &streamIterator{stream: stream}, nil
}

type streamIterator struct {
	stream  *anthropic.MessageStream
	current llm.Chunk
	message anthropic.Message
	err     error
}

func (s *streamIterator) Next() bool {
	if !s.stream.Next() {
		s.err = s.stream.Err()
		return false
	}

	event := s.stream.Current()
	if err := s.message.Accumulate(event); err != nil {
		s.err = fmt.Errorf("anthropic: accumulate stream event: %w", err)
		return false
	}

	switch delta := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		s.current = llm.Chunk{Delta: delta.Delta.Text}
		return true
	case anthropic.MessageStopEvent:
		var content string
		for _, block := range s.message.Content {
			if block.Type == "text" {
				content += block.Text
			}
		}
		s.current = llm.Chunk{
			Final: true,
			Result: llm.Result{
				Content:   content,
				ToolCalls: toolCallsFrom(s.message.Content),
				Usage: llm.Usage{
					PromptTokens:     int(s.message.Usage.InputTokens),
					CompletionTokens: int(s.message.Usage.OutputTokens),
				},
			},
		}
		return true
	default:
		s.current = llm.Chunk{}
		return true
	}
}

func (s *streamIterator) Current() llm.Chunk { return s.current }
func (s *streamIterator) Err() error         { return s.err }
func (s *streamIterator) Close() error       { return s.stream.Close() }
