package llm_test

import (
	"context"
	"testing"

	"github.com/haasonsaas/groupchat/internal/llm"
)

// fakeClient is a minimal llm.Client used to confirm the interface shape is
// usable by callers without any concrete provider in scope.
type fakeClient struct {
	reply string
}

func (f fakeClient) Create(_ context.Context, messages []llm.Message, _ llm.Options) (llm.Result, error) {
	return llm.Result{Content: f.reply, Usage: llm.Usage{PromptTokens: len(messages)}}, nil
}

func (f fakeClient) CreateStream(_ context.Context, _ []llm.Message, _ llm.Options) (llm.StreamIterator, error) {
	return &fakeStream{chunks: []llm.Chunk{
		{Delta: f.reply[:1]},
		{Delta: f.reply[1:], Final: true, Result: llm.Result{Content: f.reply}},
	}}, nil
}

type fakeStream struct {
	chunks []llm.Chunk
	idx    int
}

func (s *fakeStream) Next() bool {
	if s.idx >= len(s.chunks) {
		return false
	}
	s.idx++
	return true
}
func (s *fakeStream) Current() llm.Chunk { return s.chunks[s.idx-1] }
func (s *fakeStream) Err() error         { return nil }
func (s *fakeStream) Close() error       { return nil }

func TestClientInterfaceCreate(t *testing.T) {
	var c llm.Client = fakeClient{reply: "hi"}
	res, err := c.Create(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}}, llm.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Content != "hi" {
		t.Fatalf("got %q, want %q", res.Content, "hi")
	}
}

func TestClientInterfaceCreateStream(t *testing.T) {
	var c llm.Client = fakeClient{reply: "hi"}
	stream, err := c.CreateStream(context.Background(), nil, llm.Options{})
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	var got string
	var final llm.Result
	for stream.Next() {
		chunk := stream.Current()
		got += chunk.Delta
		if chunk.Final {
			final = chunk.Result
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got != "hi" {
		t.Fatalf("accumulated delta = %q, want %q", got, "hi")
	}
	if final.Content != "hi" {
		t.Fatalf("final result content = %q, want %q", final.Content, "hi")
	}
}
