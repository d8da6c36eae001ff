// Package statecontext implements the group-chat plugin that maintains
// three freeform text blobs — state_of_run, tool_call_facts, and
// handoff_context — so agents and the selector get a standing summary of
// the conversation instead of having to re-read the whole thread.
package statecontext

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
	"github.com/haasonsaas/groupchat/internal/plugin"
	"github.com/haasonsaas/groupchat/internal/tree"
)

// Config configures the plugin.
type Config struct {
	InitialStateOfRun     string
	InitialHandoffContext string
	UserProxyName         string
	ParticipantNames      []string

	// UpdateStateOnHumanMessage controls whether a human message runs the
	// state_of_run/handoff_context LLM updates and the handoff-intent
	// classifier. The original implementation commented this block out
	// ("REMOVED for efficiency's sake") while leaving its comment in place
	// as a no-op; here it is a real, named switch instead of dead code, and
	// defaults to true (the pre-removal behavior) because a human message
	// always carries the same "this always influences state" status as
	// defined in the surrounding hook set.
	UpdateStateOnHumanMessage bool
}

// Plugin is the state-context group-chat plugin.
type Plugin struct {
	client llm.Client
	intent *handoffIntentRouter
	logger *slog.Logger

	userProxyName    string
	participantNames []string
	updateOnHuman    bool

	stateOfRun     string
	toolCallFacts  string
	handoffContext string

	snapshots           *tree.SnapshotStore
	currentThreadLength int

	interrupted bool
}

// New returns a Plugin using client for its LLM calls.
func New(client llm.Client, cfg Config, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		client:           client,
		intent:           newHandoffIntentRouter(client),
		logger:           logger,
		userProxyName:    cfg.UserProxyName,
		participantNames: cfg.ParticipantNames,
		updateOnHuman:    cfg.UpdateStateOnHumanMessage,
		stateOfRun:       cfg.InitialStateOfRun,
		handoffContext:   cfg.InitialHandoffContext,
		snapshots:        tree.NewSnapshotStore(),
	}
}

// Name identifies the plugin in registration order and in persisted state.
func (p *Plugin) Name() string { return "state_context" }

// Interrupt stops all pending updates from taking effect, mirroring the
// manager's cancellation-token linkage: an interrupt must not corrupt the
// stored text with a half-finished update.
func (p *Plugin) Interrupt() { p.interrupted = true }

// Resume clears the interrupted flag for the next run.
func (p *Plugin) Resume() { p.interrupted = false }

// OnMessageAdded updates tool_call_facts on a ToolCallExecution and
// state_of_run on any other agent ChatMessage, then snapshots.
func (p *Plugin) OnMessageAdded(ctx context.Context, ev events.Event, thread events.Thread) error {
	if p.interrupted {
		return nil
	}
	p.currentThreadLength = len(thread)

	switch msg := ev.(type) {
	case events.ToolCallExecution:
		if err := p.updateToolCallFacts(ctx, msg); err != nil {
			p.logger.Warn("state_context: failed to update tool_call_facts", "error", err)
			return nil
		}
		p.createSnapshot()
	case events.ChatMessage:
		source := msg.EventSource()
		if source != "system" && source != "selector" {
			if err := p.updateStateOfRun(ctx, msg); err != nil {
				p.logger.Warn("state_context: failed to update state_of_run", "error", err)
				return nil
			}
			p.createSnapshot()
		}
	}
	return nil
}

// OnBeforeSpeakerSelection never has an opinion on the next speaker.
func (p *Plugin) OnBeforeSpeakerSelection(context.Context, events.Thread, []string, []string) (string, error) {
	return "", nil
}

// OnUserMessage runs the human-message state updates when UpdateStateOnHumanMessage is set.
func (p *Plugin) OnUserMessage(ctx context.Context, msg events.ChatMessage, _ bool, _ string) error {
	if p.interrupted {
		return nil
	}

	isHuman := p.isHumanSource(msg.EventSource())
	if !isHuman || !p.updateOnHuman {
		return nil
	}

	if err := p.updateStateOfRun(ctx, msg); err != nil {
		p.logger.Error("state_context: state_of_run update failed", "error", err)
	}
	if err := p.updateHandoffContext(ctx, msg); err != nil {
		p.logger.Error("state_context: handoff_context update failed", "error", err)
	}
	if _, err := p.intent.DetectIntent(ctx, msg.Content); err != nil {
		p.logger.Error("state_context: intent detection failed", "error", err)
	}
	p.createSnapshot()
	return nil
}

func (p *Plugin) isHumanSource(source string) bool {
	if source == p.userProxyName {
		return true
	}
	for _, n := range p.participantNames {
		if n == source {
			return false
		}
	}
	return true
}

// OnBranch restores state from the nearest snapshot at or before the new
// thread end, or resets to empty if none exists, and drops snapshots past
// the new length.
func (p *Plugin) OnBranch(_ context.Context, _ int, newLength int) error {
	lastIdx := newLength - 1
	if lastIdx >= 0 {
		if snap, ok := p.snapshots.Nearest(lastIdx); ok {
			p.stateOfRun = snap.StateOfRun
			p.toolCallFacts = snap.ToolCallFacts
			p.handoffContext = snap.HandoffContext
			p.snapshots.DropAfter(lastIdx)
			p.currentThreadLength = newLength
			return nil
		}
	}
	p.logger.Warn("state_context: no snapshot at or before branch point, resetting state", "new_length", newLength)
	p.stateOfRun = ""
	p.toolCallFacts = ""
	p.handoffContext = ""
	p.snapshots = tree.NewSnapshotStore()
	p.currentThreadLength = newLength
	return nil
}

// GetStateForAgent returns every state string, used to render an agent's
// system prompt.
func (p *Plugin) GetStateForAgent(context.Context) (plugin.StateView, error) {
	return plugin.StateView{
		"state_of_run":    p.stateOfRun,
		"tool_call_facts": p.toolCallFacts,
		"handoff_context": p.handoffContext,
	}, nil
}

// GetStateForSelector returns the subset of state relevant to speaker
// selection.
func (p *Plugin) GetStateForSelector(context.Context) (plugin.StateView, error) {
	return plugin.StateView{
		"state_of_run":    p.stateOfRun,
		"handoff_context": p.handoffContext,
	}, nil
}

type persistedState struct {
	StateOfRun          string                `json:"state_of_run"`
	ToolCallFacts       string                `json:"tool_call_facts"`
	HandoffContext      string                `json:"handoff_context"`
	Snapshots           map[int]tree.Snapshot `json:"snapshots"`
	CurrentThreadLength int                   `json:"current_thread_length"`
}

// SaveState serializes the plugin's state for session persistence.
func (p *Plugin) SaveState(context.Context) ([]byte, error) {
	state := persistedState{
		StateOfRun:          p.stateOfRun,
		ToolCallFacts:       p.toolCallFacts,
		HandoffContext:      p.handoffContext,
		Snapshots:           p.snapshots.Export(),
		CurrentThreadLength: p.currentThreadLength,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshaling state_context state: %w", err)
	}
	return data, nil
}

// LoadState restores the plugin's state from data produced by SaveState.
func (p *Plugin) LoadState(_ context.Context, data []byte) error {
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshaling state_context state: %w", err)
	}
	p.stateOfRun = state.StateOfRun
	p.toolCallFacts = state.ToolCallFacts
	p.handoffContext = state.HandoffContext
	p.currentThreadLength = state.CurrentThreadLength
	p.snapshots = tree.NewSnapshotStore()
	if state.Snapshots != nil {
		p.snapshots.Import(state.Snapshots)
	}
	return nil
}

func (p *Plugin) createSnapshot() {
	msgIdx := p.currentThreadLength - 1
	if msgIdx < 0 {
		p.logger.Warn("state_context: cannot snapshot an empty thread")
		return
	}
	p.snapshots.Put(msgIdx, tree.Snapshot{
		StateOfRun:     p.stateOfRun,
		ToolCallFacts:  p.toolCallFacts,
		HandoffContext: p.handoffContext,
	})
}
