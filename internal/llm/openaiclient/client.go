// Package openaiclient adapts github.com/sashabaranov/go-openai to the
// llm.Client interface.
package openaiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/groupchat/internal/llm"
)

func toolCallsFrom(calls []openai.ToolCall) []llm.ToolCall {
	var out []llm.ToolCall
	for _, c := range calls {
		out = append(out, llm.ToolCall{ID: c.ID, Name: c.Function.Name, Args: c.Function.Arguments})
	}
	return out
}

// DefaultModel is used when an Options.Model is not supplied.
const DefaultModel = openai.GPT4o

// Client wraps an openai.Client.
type Client struct {
	sdk *openai.Client
}

// New returns a Client authenticated with apiKey.
func New(apiKey string) *Client {
	return &Client{sdk: openai.NewClient(apiKey)}
}

func toRequest(messages []llm.Message, opts llm.Options, stream bool) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: opts.MaxTokens,
		Stream:    stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	if len(opts.JSONSchema) > 0 {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Schema),
			},
		})
	}
	return req
}

// Create sends messages and returns the complete response.
func (c *Client) Create(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Result, error) {
	resp, err := c.sdk.CreateChatCompletion(ctx, toRequest(messages, opts, false))
	if err != nil {
		return llm.Result{}, fmt.Errorf("openai: create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Result{}, fmt.Errorf("openai: response had no choices")
	}
	return llm.Result{
		Content:   resp.Choices[0].Message.Content,
		ToolCalls: toolCallsFrom(resp.Choices[0].Message.ToolCalls),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// CreateStream sends messages and streams the response incrementally.
func (c *Client) CreateStream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.StreamIterator, error) {
	stream, err := c.sdk.CreateChatCompletionStream(ctx, toRequest(messages, opts, true))
	if err != nil {
		return nil, fmt.Errorf("openai: create chat completion stream: %w", err)
	}
	return &streamIterator{stream: stream}, nil
}

type streamIterator struct {
	stream    *openai.ChatCompletionStream
	current   llm.Chunk
	content   string
	toolCalls map[int]*llm.ToolCall
	err       error
	done      bool
}

func (s *streamIterator) Next() bool {
	if s.done {
		return false
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.current = llm.Chunk{Final: true, Result: llm.Result{Content: s.content, ToolCalls: s.finishedToolCalls()}}
		s.done = true
		return true
	}
	if err != nil {
		s.err = fmt.Errorf("openai: receive stream chunk: %w", err)
		return false
	}
	if len(resp.Choices) == 0 {
		s.current = llm.Chunk{}
		return true
	}
	delta := resp.Choices[0].Delta
	for _, tc := range delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		if s.toolCalls == nil {
			s.toolCalls = make(map[int]*llm.ToolCall)
		}
		call, ok := s.toolCalls[idx]
		if !ok {
			call = &llm.ToolCall{}
			s.toolCalls[idx] = call
		}
		if tc.ID != "" {
			call.ID = tc.ID
		}
		call.Name += tc.Function.Name
		call.Args += tc.Function.Arguments
	}
	s.content += delta.Content
	s.current = llm.Chunk{Delta: delta.Content}
	return true
}

func (s *streamIterator) finishedToolCalls() []llm.ToolCall {
	if len(s.toolCalls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(s.toolCalls))
	for i := 0; i < len(s.toolCalls); i++ {
		if call, ok := s.toolCalls[i]; ok {
			out = append(out, *call)
		}
	}
	return out
}

func (s *streamIterator) Current() llm.Chunk { return s.current }
func (s *streamIterator) Err() error         { return s.err }
func (s *streamIterator) Close() error       { return s.stream.Close() }
