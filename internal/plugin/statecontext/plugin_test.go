package statecontext

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
	"github.com/haasonsaas/groupchat/internal/tree"
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

func newTestPlugin(reply string, updateOnHuman bool) *Plugin {
	return New(stubClient{reply: reply}, Config{
		UserProxyName:             "user_proxy",
		ParticipantNames:          []string{"researcher", "writer"},
		UpdateStateOnHumanMessage: updateOnHuman,
	}, nil)
}

func TestOnMessageAddedUpdatesStateOfRunForAgentMessage(t *testing.T) {
	p := newTestPlugin("searched for docs, found 3 results", true)
	msg := events.NewChatMessage("researcher", "m1", "I looked into it", time.Now())
	thread := events.Thread{msg}

	if err := p.OnMessageAdded(context.Background(), msg, thread); err != nil {
		t.Fatalf("OnMessageAdded: %v", err)
	}
	if p.stateOfRun != "searched for docs, found 3 results" {
		t.Fatalf("got %q", p.stateOfRun)
	}
	if _, ok := p.snapshots.Nearest(0); !ok {
		t.Fatalf("expected a snapshot at index 0")
	}
}

func TestOnMessageAddedConcatenatesToolCallFacts(t *testing.T) {
	p := newTestPlugin("fact: the sky is blue", true)
	p.toolCallFacts = "fact: water is wet"

	exec := events.ToolCallExecution{Results: []events.ToolResult{{Name: "search", OK: true, Content: "result"}}}
	thread := events.Thread{exec}

	if err := p.OnMessageAdded(context.Background(), exec, thread); err != nil {
		t.Fatalf("OnMessageAdded: %v", err)
	}
	want := "fact: water is wet\n\nfact: the sky is blue"
	if p.toolCallFacts != want {
		t.Fatalf("got %q, want %q", p.toolCallFacts, want)
	}
}

func TestOnMessageAddedSkipsSystemAndSelectorSources(t *testing.T) {
	p := newTestPlugin("should not be used", true)
	msg := events.NewChatMessage("selector", "m1", "picking next speaker", time.Now())
	if err := p.OnMessageAdded(context.Background(), msg, events.Thread{msg}); err != nil {
		t.Fatalf("OnMessageAdded: %v", err)
	}
	if p.stateOfRun != "" {
		t.Fatalf("expected state_of_run untouched for selector source, got %q", p.stateOfRun)
	}
}

func TestOnUserMessageRespectsUpdateOnHumanFlag(t *testing.T) {
	p := newTestPlugin("new state", false)
	p.currentThreadLength = 1
	msg := events.NewChatMessage("user_proxy", "m1", "do X instead", time.Now())

	if err := p.OnUserMessage(context.Background(), msg, false, ""); err != nil {
		t.Fatalf("OnUserMessage: %v", err)
	}
	if p.stateOfRun != "" {
		t.Fatalf("expected no update when UpdateStateOnHumanMessage is false, got %q", p.stateOfRun)
	}
}

func TestOnUserMessageUpdatesWhenEnabled(t *testing.T) {
	p := newTestPlugin("new state", true)
	p.currentThreadLength = 1
	msg := events.NewChatMessage("user_proxy", "m1", "do X instead", time.Now())

	if err := p.OnUserMessage(context.Background(), msg, false, ""); err != nil {
		t.Fatalf("OnUserMessage: %v", err)
	}
	if p.stateOfRun != "new state" {
		t.Fatalf("got %q, want %q", p.stateOfRun, "new state")
	}
	if p.handoffContext != "new state" {
		t.Fatalf("got %q, want %q", p.handoffContext, "new state")
	}
}

func TestOnBranchRestoresNearestSnapshot(t *testing.T) {
	p := newTestPlugin("unused", true)
	p.snapshots.Put(0, snapshotFor("s0", "f0", "h0"))
	p.snapshots.Put(2, snapshotFor("s2", "f2", "h2"))
	p.stateOfRun, p.toolCallFacts, p.handoffContext = "stale", "stale", "stale"

	if err := p.OnBranch(context.Background(), 1, 2); err != nil {
		t.Fatalf("OnBranch: %v", err)
	}
	if p.stateOfRun != "s0" || p.toolCallFacts != "f0" || p.handoffContext != "h0" {
		t.Fatalf("got (%q,%q,%q), want snapshot at index 0", p.stateOfRun, p.toolCallFacts, p.handoffContext)
	}
}

func TestOnBranchResetsWhenNoSnapshotExists(t *testing.T) {
	p := newTestPlugin("unused", true)
	p.stateOfRun = "stale"

	if err := p.OnBranch(context.Background(), 5, 0); err != nil {
		t.Fatalf("OnBranch: %v", err)
	}
	if p.stateOfRun != "" || p.toolCallFacts != "" || p.handoffContext != "" {
		t.Fatalf("expected full reset with no snapshot available")
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	p := newTestPlugin("unused", true)
	p.stateOfRun = "run"
	p.toolCallFacts = "facts"
	p.handoffContext = "handoff"
	p.snapshots.Put(3, snapshotFor("a", "b", "c"))

	data, err := p.SaveState(context.Background())
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := newTestPlugin("unused", true)
	if err := restored.LoadState(context.Background(), data); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if restored.stateOfRun != "run" || restored.toolCallFacts != "facts" || restored.handoffContext != "handoff" {
		t.Fatalf("state did not round-trip: %+v", restored)
	}
	if snap, ok := restored.snapshots.Nearest(3); !ok || snap.StateOfRun != "a" {
		t.Fatalf("snapshot did not round-trip: %+v ok=%v", snap, ok)
	}
}

func snapshotFor(state, facts, handoff string) tree.Snapshot {
	return tree.Snapshot{StateOfRun: state, ToolCallFacts: facts, HandoffContext: handoff}
}
