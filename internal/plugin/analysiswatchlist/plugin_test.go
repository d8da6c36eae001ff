package analysiswatchlist

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
)

type stubClient struct {
	reply string
}

func (s stubClient) Create(context.Context, []llm.Message, llm.Options) (llm.Result, error) {
	return llm.Result{Content: s.reply}, nil
}

func (s stubClient) CreateStream(context.Context, []llm.Message, llm.Options) (llm.StreamIterator, error) {
	panic("not used in these tests")
}

func TestParsePromptExtractsComponents(t *testing.T) {
	svc := NewService(stubClient{reply: `{"components":[{"label":"geo-hallucination","description":"check cities"},{"label":"bad-math","description":"check arithmetic"}]}`})
	components, err := svc.ParsePrompt(context.Background(), "watch for made up places and bad math")
	if err != nil {
		t.Fatalf("ParsePrompt: %v", err)
	}
	if len(components) != 2 {
		t.Fatalf("got %d components, want 2", len(components))
	}
	if components[0].Color == "" {
		t.Fatalf("expected a deterministic color to be assigned")
	}
}

func TestParsePromptEmptyInput(t *testing.T) {
	svc := NewService(stubClient{reply: "irrelevant"})
	components, err := svc.ParsePrompt(context.Background(), "   ")
	if err != nil {
		t.Fatalf("ParsePrompt: %v", err)
	}
	if components != nil {
		t.Fatalf("expected nil components for blank prompt")
	}
}

func TestScoreMessageParsesFlattenedFormat(t *testing.T) {
	svc := NewService(stubClient{reply: `{"component_scores":[{"label":"geo","score":9}],"component_reasoning":[{"label":"geo","reasoning":"invented a city"}]}`})
	scores, err := svc.ScoreMessage(context.Background(), "Paris has a district called Nordhaven", []Component{NewComponent("geo", "desc")}, "", "", 8)
	if err != nil {
		t.Fatalf("ScoreMessage: %v", err)
	}
	if scores["geo"].Value != 9 || scores["geo"].Reasoning != "invented a city" {
		t.Fatalf("got %+v", scores["geo"])
	}
}

func TestScoreMessageFallsBackOnMalformedJSON(t *testing.T) {
	svc := NewService(stubClient{reply: "not json at all"})
	scores, err := svc.ScoreMessage(context.Background(), "message", []Component{NewComponent("a", "d")}, "", "", 8)
	if err != nil {
		t.Fatalf("ScoreMessage: %v", err)
	}
	if scores["a"].Value != 5 {
		t.Fatalf("expected default score of 5, got %+v", scores["a"])
	}
}

func TestOnMessageAddedTriggersAndStashesPendingAnalysis(t *testing.T) {
	svc := NewService(stubClient{reply: `{"component_scores":[{"label":"geo","score":9}],"component_reasoning":[{"label":"geo","reasoning":"invented a city"}]}`})
	var emitted *events.AnalysisUpdate
	p := New(svc, Config{Components: []Component{NewComponent("geo", "desc")}, TriggerThreshold: 8}, func(u events.AnalysisUpdate) {
		emitted = &u
	}, nil)

	msg := events.NewChatMessage("researcher", "m1", "there's a district called Nordhaven", time.Now())
	if err := p.OnMessageAdded(context.Background(), msg, events.Thread{msg}); err != nil {
		t.Fatalf("OnMessageAdded: %v", err)
	}

	if emitted == nil {
		t.Fatalf("expected an AnalysisUpdate to be emitted")
	}
	if len(emitted.Triggered) != 1 || emitted.Triggered[0] != "geo" {
		t.Fatalf("got triggered=%v", emitted.Triggered)
	}
	if p.PendingAnalysis() == nil {
		t.Fatalf("expected a pending analysis to be stashed")
	}
}

func TestOnMessageAddedSkipsUserProxySource(t *testing.T) {
	svc := NewService(stubClient{reply: `{"component_scores":[{"label":"geo","score":9}]}`})
	p := New(svc, Config{Components: []Component{NewComponent("geo", "desc")}, UserProxyName: "user_proxy"}, nil, nil)

	msg := events.NewChatMessage("user_proxy", "m1", "feedback", time.Now())
	if err := p.OnMessageAdded(context.Background(), msg, events.Thread{msg}); err != nil {
		t.Fatalf("OnMessageAdded: %v", err)
	}
	if p.PendingAnalysis() != nil {
		t.Fatalf("expected no pending analysis for a user-proxy message")
	}
}

func TestOnBeforeSpeakerSelectionForcesUserProxyWhenPending(t *testing.T) {
	svc := NewService(stubClient{reply: `{"component_scores":[{"label":"geo","score":9}]}`})
	p := New(svc, Config{Components: []Component{NewComponent("geo", "desc")}, UserProxyName: "user_proxy"}, nil, nil)

	msg := events.NewChatMessage("researcher", "m1", "invented city", time.Now())
	if err := p.OnMessageAdded(context.Background(), msg, events.Thread{msg}); err != nil {
		t.Fatalf("OnMessageAdded: %v", err)
	}

	forced, err := p.OnBeforeSpeakerSelection(context.Background(), events.Thread{msg}, nil, nil)
	if err != nil {
		t.Fatalf("OnBeforeSpeakerSelection: %v", err)
	}
	if forced != "user_proxy" {
		t.Fatalf("got %q, want user_proxy", forced)
	}
}

func TestOnUserMessageClearsPending(t *testing.T) {
	svc := NewService(stubClient{reply: `{"component_scores":[{"label":"geo","score":9}]}`})
	p := New(svc, Config{Components: []Component{NewComponent("geo", "desc")}}, nil, nil)

	msg := events.NewChatMessage("researcher", "m1", "invented city", time.Now())
	if err := p.OnMessageAdded(context.Background(), msg, events.Thread{msg}); err != nil {
		t.Fatalf("OnMessageAdded: %v", err)
	}
	if p.PendingAnalysis() == nil {
		t.Fatalf("expected pending analysis before user message")
	}

	if err := p.OnUserMessage(context.Background(), events.NewChatMessage("user_proxy", "m2", "fixed", time.Now()), false, ""); err != nil {
		t.Fatalf("OnUserMessage: %v", err)
	}
	if p.PendingAnalysis() != nil {
		t.Fatalf("expected pending analysis to be cleared")
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	svc := NewService(stubClient{reply: "unused"})
	p := New(svc, Config{Components: []Component{NewComponent("geo", "desc")}, TriggerThreshold: 7}, nil, nil)

	data, err := p.SaveState(context.Background())
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := New(svc, Config{}, nil, nil)
	if err := restored.LoadState(context.Background(), data); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if restored.threshold != 7 || len(restored.components) != 1 {
		t.Fatalf("state did not round-trip: threshold=%d components=%d", restored.threshold, len(restored.components))
	}
}
