package groupchat

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
	"github.com/haasonsaas/groupchat/internal/plugin"
)

func TestMentionedAgentsRecognisesUnderscoreVariants(t *testing.T) {
	names := []string{"Story_writer", "Bob"}
	mentions := mentionedAgents("I think Story writer should go next, not Bob.", names)
	if mentions["Story_writer"] != 1 {
		t.Fatalf("expected Story_writer to match the space variant, got %+v", mentions)
	}
	if mentions["Bob"] != 1 {
		t.Fatalf("expected Bob to match, got %+v", mentions)
	}
}

func TestMentionedAgentsRequiresWordBoundary(t *testing.T) {
	mentions := mentionedAgents("Bobby should not count as Bob.", []string{"Bob"})
	if mentions["Bob"] != 1 {
		t.Fatalf("expected exactly one boundary-respecting match, got %+v", mentions)
	}
}

type fakeSelectorClient struct {
	responses []string
	calls     int
}

func (f *fakeSelectorClient) Create(_ context.Context, _ []llm.Message, _ llm.Options) (llm.Result, error) {
	r := f.responses[f.calls]
	f.calls++
	return llm.Result{Content: r}, nil
}

func (f *fakeSelectorClient) CreateStream(context.Context, []llm.Message, llm.Options) (llm.StreamIterator, error) {
	panic("not used")
}

func TestSelectPrefersSelectorFuncOverLLM(t *testing.T) {
	client := &fakeSelectorClient{responses: []string{"should never be called"}}
	sel, err := newSelector(SelectionConfig{
		Participants:           []string{"a", "b"},
		SelectorPromptTemplate: "{{.Roles}}",
		MaxSelectorAttempts:    3,
		Client:                 client,
		SelectorFunc:           func(events.Thread) (string, error) { return "b", nil },
	})
	if err != nil {
		t.Fatalf("newSelector: %v", err)
	}
	name, err := sel.Select(context.Background(), plugin.NewChain(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != "b" {
		t.Fatalf("got %q, want b", name)
	}
	if client.calls != 0 {
		t.Fatalf("selector func should have short-circuited the LLM call")
	}
}

func TestSelectRetriesOnAmbiguousMentionThenSucceeds(t *testing.T) {
	client := &fakeSelectorClient{responses: []string{
		"I think both a and b could go",
		"Let's go with b",
	}}
	sel, err := newSelector(SelectionConfig{
		Participants:           []string{"a", "b", "c"},
		SelectorPromptTemplate: "pick one of {{.Participants}}",
		MaxSelectorAttempts:    3,
		Client:                 client,
	})
	if err != nil {
		t.Fatalf("newSelector: %v", err)
	}
	name, err := sel.Select(context.Background(), plugin.NewChain(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != "b" {
		t.Fatalf("got %q, want b", name)
	}
	if client.calls != 2 {
		t.Fatalf("expected a retry after the ambiguous first attempt, got %d calls", client.calls)
	}
}

func TestSelectFallsBackToPreviousSpeakerOnExhaustion(t *testing.T) {
	client := &fakeSelectorClient{responses: []string{"no idea", "still no idea", "nope"}}
	// Three participants so that two candidates (b, c) remain after the
	// previous speaker is excluded and the LLM is actually consulted.
	sel, err := newSelector(SelectionConfig{
		Participants:           []string{"a", "b", "c"},
		SelectorPromptTemplate: "{{.Participants}}",
		MaxSelectorAttempts:    3,
		Client:                 client,
	})
	if err != nil {
		t.Fatalf("newSelector: %v", err)
	}
	sel.previousSpeaker = "a"
	name, err := sel.Select(context.Background(), plugin.NewChain(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != "a" {
		t.Fatalf("got %q, want fallback to previous speaker a", name)
	}
}

func TestSelectSkipsLLMWhenOnlyOneCandidateRemains(t *testing.T) {
	client := &fakeSelectorClient{responses: []string{"should not be called"}}
	sel, err := newSelector(SelectionConfig{
		Participants:           []string{"a", "b"},
		SelectorPromptTemplate: "{{.Participants}}",
		MaxSelectorAttempts:    3,
		Client:                 client,
	})
	if err != nil {
		t.Fatalf("newSelector: %v", err)
	}
	sel.previousSpeaker = "a" // repeats disallowed by default, so only "b" remains

	name, err := sel.Select(context.Background(), plugin.NewChain(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != "b" || client.calls != 0 {
		t.Fatalf("got name=%q calls=%d, want b with no LLM call", name, client.calls)
	}
}

func TestRenderThreadHistoryOnlyIncludesChatMessages(t *testing.T) {
	now := time.Now()
	thread := events.Thread{
		events.NewChatMessage("alice", "1", "hi", now),
		events.NewToolCallRequest("alice", nil, now),
		events.NewChatMessage("bob", "2", "hello", now),
	}
	got := renderThreadHistory(thread)
	want := "alice : hi\n\nbob : hello"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
