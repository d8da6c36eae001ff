package agentcontainer

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
	"github.com/haasonsaas/groupchat/internal/plugin"
	"github.com/haasonsaas/groupchat/internal/workbench"
)

type scriptedClient struct {
	results []llm.Result
	calls   int
	sent    [][]llm.Message
}

func (s *scriptedClient) Create(_ context.Context, messages []llm.Message, _ llm.Options) (llm.Result, error) {
	s.sent = append(s.sent, messages)
	r := s.results[s.calls]
	s.calls++
	return r, nil
}

func (s *scriptedClient) CreateStream(context.Context, []llm.Message, llm.Options) (llm.StreamIterator, error) {
	panic("not used in these tests")
}

func newContainer(t *testing.T, cfg Config) *Container {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.newID = func() string { return "fixed-id" }
	return c
}

func TestRespondRendersSystemPromptAndHistory(t *testing.T) {
	client := &scriptedClient{results: []llm.Result{{Content: "all clear"}}}
	c := newContainer(t, Config{
		Name:                 "researcher",
		SystemPromptTemplate: "state={{.StateOfRun}} facts={{.ToolCallFacts}} who={{.ParticipantNames}}",
		Client:               client,
	})
	c.Inbound(events.NewChatMessage("You", "m0", "what's the status?", time.Now()))

	resp, err := c.Respond(context.Background(), plugin.StateView{"state_of_run": "investigating", "tool_call_facts": "none yet"}, []string{"researcher", "writer"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.ChatMessage.Content != "all clear" || resp.ChatMessage.EventSource() != "researcher" {
		t.Fatalf("got %+v", resp.ChatMessage)
	}
	if len(client.sent) != 1 || len(client.sent[0]) != 2 {
		t.Fatalf("expected one system + one history message, got %+v", client.sent)
	}
	system := client.sent[0][0].Content
	if system != "state=investigating facts=none yet who=researcher, writer" {
		t.Fatalf("unexpected rendered system prompt: %q", system)
	}
	if client.sent[0][1].Content != "You : what's the status?" {
		t.Fatalf("unexpected rendered history: %q", client.sent[0][1].Content)
	}
}

func TestRespondWithNoBufferOmitsHistoryMessage(t *testing.T) {
	client := &scriptedClient{results: []llm.Result{{Content: "ready"}}}
	c := newContainer(t, Config{Name: "a", SystemPromptTemplate: "sys", Client: client})

	if _, err := c.Respond(context.Background(), plugin.StateView{}, nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(client.sent[0]) != 1 {
		t.Fatalf("expected only the system message when the buffer is empty, got %+v", client.sent[0])
	}
}

func TestBranchDropsLastKBufferedEntries(t *testing.T) {
	c := newContainer(t, Config{Name: "a", SystemPromptTemplate: "sys", Client: &scriptedClient{}})
	for i := 0; i < 3; i++ {
		c.Inbound(events.NewChatMessage("You", "m", "x", time.Now()))
	}
	c.Branch(2)
	if c.BufferLen() != 1 {
		t.Fatalf("got buffer len %d, want 1", c.BufferLen())
	}
	c.Branch(10)
	if c.BufferLen() != 0 {
		t.Fatalf("Branch should clamp to buffer length, got %d", c.BufferLen())
	}
}

func TestRespondRunsToolCallCycleThenReturnsFinalAnswer(t *testing.T) {
	tools := workbench.NewMemory()
	if err := tools.Register(workbench.ToolSpec{
		Name:   "lookup",
		Schema: []byte(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`),
	}, func(_ context.Context, args map[string]any) (workbench.Result, error) {
		return workbench.Result{OK: true, Content: "found: " + args["q"].(string)}, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	client := &scriptedClient{results: []llm.Result{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "lookup", Args: `{"q":"nexus"}`}}},
		{Content: "the answer is found: nexus"},
	}}
	c := newContainer(t, Config{Name: "a", SystemPromptTemplate: "sys", Client: client, Tools: tools})

	resp, err := c.Respond(context.Background(), plugin.StateView{}, nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.ChatMessage.Content != "the answer is found: nexus" {
		t.Fatalf("got %+v", resp.ChatMessage)
	}
	if len(resp.InnerMessages) != 2 {
		t.Fatalf("expected a (request, execution) pair, got %d inner messages", len(resp.InnerMessages))
	}
	req, ok := resp.InnerMessages[0].(events.ToolCallRequest)
	if !ok || len(req.Calls) != 1 || req.Calls[0].Name != "lookup" {
		t.Fatalf("got %+v", resp.InnerMessages[0])
	}
	exec, ok := resp.InnerMessages[1].(events.ToolCallExecution)
	if !ok || len(exec.Results) != 1 || !exec.Results[0].OK {
		t.Fatalf("got %+v", resp.InnerMessages[1])
	}
	if err := (events.Thread{req, exec}).ValidateToolPairing(); err != nil {
		t.Fatalf("generated tool call pair does not satisfy the pairing invariant: %v", err)
	}
}

func TestRespondStopsAfterMaxToolIterations(t *testing.T) {
	tools := workbench.NewMemory()
	if err := tools.Register(workbench.ToolSpec{Name: "loopy", Schema: []byte(`{"type":"object"}`)}, func(context.Context, map[string]any) (workbench.Result, error) {
		return workbench.Result{OK: true, Content: "again"}, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	always := llm.Result{ToolCalls: []llm.ToolCall{{ID: "c", Name: "loopy", Args: `{}`}}}
	client := &scriptedClient{results: []llm.Result{always, always, always}}
	c := newContainer(t, Config{Name: "a", SystemPromptTemplate: "sys", Client: client, Tools: tools, MaxToolIterations: 2})

	resp, err := c.Respond(context.Background(), plugin.StateView{}, nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected exactly MaxToolIterations model calls, got %d", client.calls)
	}
	if len(resp.InnerMessages) != 2 {
		t.Fatalf("expected one tool pair before giving up, got %d", len(resp.InnerMessages))
	}
}
