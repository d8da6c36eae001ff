package analysiswatchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/plugin"
)

// PendingAnalysis is the stashed record kept between a triggering message
// and the user feedback that resolves it.
type PendingAnalysis struct {
	NodeID     string
	Triggered  []string
	Scores     map[string]Score
	Message    string
	MessageSrc string
}

// Config configures the plugin.
type Config struct {
	Components       []Component
	TriggerThreshold int
	UserProxyName    string
}

// Plugin is the analysis-watchlist group-chat plugin.
type Plugin struct {
	service         *Service
	components      []Component
	threshold       int
	userProxyName   string
	logger          *slog.Logger
	pendingAnalysis *PendingAnalysis
	emitAnalysis    func(events.AnalysisUpdate)
	getState        StateGetter
}

// New returns a Plugin using service to score messages. emitAnalysis
// publishes the resulting AnalysisUpdate event to observers; it may be nil
// in which case updates are simply not emitted (useful in tests).
func New(service *Service, cfg Config, emitAnalysis func(events.AnalysisUpdate), logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TriggerThreshold == 0 {
		cfg.TriggerThreshold = 8
	}
	if cfg.UserProxyName == "" {
		cfg.UserProxyName = "user_proxy"
	}
	return &Plugin{
		service:       service,
		components:    cfg.Components,
		threshold:     cfg.TriggerThreshold,
		userProxyName: cfg.UserProxyName,
		logger:        logger,
		emitAnalysis:  emitAnalysis,
		getState:      noState,
	}
}

// Name identifies the plugin in registration order and in persisted state.
func (p *Plugin) Name() string { return "analysis_watchlist" }

// PendingAnalysis returns the currently stashed trigger record, or nil.
func (p *Plugin) PendingAnalysis() *PendingAnalysis { return p.pendingAnalysis }

// StateGetter is implemented by whatever exposes the state-context
// plugin's current text blobs; kept as a narrow function-typed dependency
// rather than a direct import so this plugin does not need to know about
// statecontext's concrete type.
type StateGetter func() (toolCallFacts, stateOfRun string)

var noState StateGetter = func() (string, string) { return "", "" }

// SetStateGetter wires in the callback used to fetch the state-context
// plugin's current tool_call_facts/state_of_run text; defaults to
// returning no context.
func (p *Plugin) SetStateGetter(fn StateGetter) {
	if fn == nil {
		fn = noState
	}
	p.getState = fn
}

// OnMessageAdded scores agent ChatMessages (never user-proxy or "You"
// messages) against the configured components and stashes a pending
// trigger when any component clears the threshold.
func (p *Plugin) OnMessageAdded(ctx context.Context, ev events.Event, _ events.Thread) error {
	msg, ok := ev.(events.ChatMessage)
	if !ok {
		return nil
	}
	if len(p.components) == 0 {
		return nil
	}
	source := msg.EventSource()
	if source == p.userProxyName || source == "You" || source == "user" {
		return nil
	}

	facts, progress := "", ""
	if p.getState != nil {
		facts, progress = p.getState()
	}

	scores, err := p.service.ScoreMessage(ctx, msg.Content, p.components, facts, progress, p.threshold)
	if err != nil {
		p.logger.Warn("analysis_watchlist: scoring failed, continuing without analysis", "error", err)
		return nil
	}

	var triggered []string
	for label, score := range scores {
		if score.Value >= p.threshold {
			triggered = append(triggered, label)
		}
	}

	if p.emitAnalysis != nil {
		p.emitAnalysis(events.AnalysisUpdate{
			NodeID:    msg.ID,
			Scores:    toEventScores(scores),
			Triggered: triggered,
		})
	}

	if len(triggered) > 0 {
		p.pendingAnalysis = &PendingAnalysis{
			NodeID:     msg.ID,
			Triggered:  triggered,
			Scores:     scores,
			Message:    msg.Content,
			MessageSrc: source,
		}
	}
	return nil
}

func toEventScores(scores map[string]Score) map[string]events.ComponentScore {
	out := make(map[string]events.ComponentScore, len(scores))
	for label, s := range scores {
		out[label] = events.ComponentScore{Score: s.Value, Reasoning: s.Reasoning}
	}
	return out
}

// OnBeforeSpeakerSelection forces the user proxy to speak next when a
// trigger is pending, so a human can give feedback before the run
// continues.
func (p *Plugin) OnBeforeSpeakerSelection(_ context.Context, _ events.Thread, _, _ []string) (string, error) {
	if p.pendingAnalysis != nil {
		return p.userProxyName, nil
	}
	return "", nil
}

// OnUserMessage clears the pending trigger once the user has responded.
func (p *Plugin) OnUserMessage(_ context.Context, _ events.ChatMessage, _ bool, _ string) error {
	p.pendingAnalysis = nil
	return nil
}

// OnBranch clears the pending trigger; the branch point may have moved
// past the triggering message entirely.
func (p *Plugin) OnBranch(_ context.Context, _, _ int) error {
	p.pendingAnalysis = nil
	return nil
}

// GetStateForAgent contributes nothing to agent prompts.
func (p *Plugin) GetStateForAgent(context.Context) (plugin.StateView, error) { return nil, nil }

// GetStateForSelector contributes nothing to the selector prompt.
func (p *Plugin) GetStateForSelector(context.Context) (plugin.StateView, error) { return nil, nil }

type persistedState struct {
	Components []Component `json:"components"`
	Threshold  int         `json:"threshold"`
}

// SaveState persists the configured components and threshold (pending
// triggers are run-scoped and intentionally not persisted).
func (p *Plugin) SaveState(context.Context) ([]byte, error) {
	data, err := json.Marshal(persistedState{Components: p.components, Threshold: p.threshold})
	if err != nil {
		return nil, fmt.Errorf("marshaling analysis_watchlist state: %w", err)
	}
	return data, nil
}

// LoadState restores the configured components and threshold.
func (p *Plugin) LoadState(_ context.Context, data []byte) error {
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshaling analysis_watchlist state: %w", err)
	}
	if state.Components != nil {
		p.components = state.Components
	}
	if state.Threshold != 0 {
		p.threshold = state.Threshold
	}
	return nil
}
