// Package groupchat implements the group-chat manager: the single
// authority over one session's message thread and conversation tree, the
// speaker-selection state machine, and the interrupt/branch/reset RPCs
// (spec.md §4.1). All state is owned exclusively by one goroutine; every
// other caller's request is funnelled through an inbound closure mailbox so
// thread mutations are totally ordered (spec.md §5).
package groupchat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/groupchat/internal/agentcontainer"
	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/inputqueue"
	"github.com/haasonsaas/groupchat/internal/metrics"
	"github.com/haasonsaas/groupchat/internal/plugin"
	"github.com/haasonsaas/groupchat/internal/telemetry"
	"github.com/haasonsaas/groupchat/internal/tree"
	"github.com/haasonsaas/groupchat/internal/trim"
)

// Emitter fans an event out to whatever is watching this session (the
// session's connected observers, in production; a test double in tests).
type Emitter interface {
	Emit(ev events.Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(events.Event) {}

// Config configures one Manager instance. One Manager owns exactly one
// session's thread, matching spec.md §3 "Session".
type Config struct {
	// Name is the manager's own event source, used to tag StopMessages. It
	// defaults to "GroupChatManager", the fixed source name internal/tree's
	// AddNode never turns into a node; the tree does not read Name itself.
	Name string

	Participants []string
	Containers   map[string]*agentcontainer.Container

	Chain       *plugin.Chain
	Selection   SelectionConfig
	Termination Condition
	// MaxTurns is enforced in addition to Termination; zero means unbounded.
	MaxTurns int

	Queue   *inputqueue.Queue
	Emitter Emitter
	Tracer  *telemetry.Tracer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Manager is the group-chat manager for one session.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	tracer  *telemetry.Tracer
	metrics *metrics.Metrics
	emitter Emitter

	inbox chan func()
	stop  chan struct{}

	// Everything below is touched only from inside the run loop.
	thread         events.Thread
	tr             *tree.Tree
	chain          *plugin.Chain
	sel            *selector
	term           Condition
	containers     map[string]*agentcontainer.Container
	participantSet map[string]struct{}
	activeSpeakers map[string]struct{}
	currentTurn    int
	interrupted    bool
	started        bool

	// selectCancel cancels the context passed to the in-flight speaker
	// selection's LLM call, if any; interruptLocked invokes it so an
	// Interrupt preempts the selection's network round-trip instead of
	// just queuing behind it (spec.md §4.1 "Interrupt()", spec.md:271).
	// selectToken guards the result the selection's goroutine eventually
	// delivers back through the mailbox: if a later round has since
	// started, the token on the stale result no longer matches and it is
	// discarded. Interrupt alone does not change the token; a result that
	// arrives after it is discarded by the interrupted check instead.
	selectCancel context.CancelFunc
	selectToken  int
}

// New validates cfg and returns a running Manager. The manager's run loop
// starts immediately and keeps running until Close.
func New(cfg Config) (*Manager, error) {
	if len(cfg.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	participantSet := make(map[string]struct{}, len(cfg.Participants))
	for _, p := range cfg.Participants {
		if _, dup := participantSet[p]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, p)
		}
		participantSet[p] = struct{}{}
		if _, ok := cfg.Containers[p]; !ok {
			return nil, fmt.Errorf("%w: no container registered for %q", ErrUnknownParticipant, p)
		}
	}
	if cfg.Name == "" {
		cfg.Name = "GroupChatManager"
	}
	if cfg.Chain == nil {
		cfg.Chain = plugin.NewChain()
	}
	if cfg.Termination == nil {
		cfg.Termination = NewMaxMessages(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Selection.Participants = cfg.Participants
	sel, err := newSelector(cfg.Selection)
	if err != nil {
		return nil, err
	}

	emitter := cfg.Emitter
	if emitter == nil {
		emitter = noopEmitter{}
	}

	m := &Manager{
		cfg:            cfg,
		logger:         cfg.Logger.With("component", "groupchat", "manager", cfg.Name),
		tracer:         cfg.Tracer,
		metrics:        cfg.Metrics,
		emitter:        emitter,
		inbox:          make(chan func(), 16),
		stop:           make(chan struct{}),
		tr:             tree.New(),
		chain:          cfg.Chain,
		sel:            sel,
		term:           cfg.Termination,
		containers:     cfg.Containers,
		participantSet: participantSet,
		activeSpeakers: make(map[string]struct{}),
	}
	go m.run()
	return m, nil
}

func (m *Manager) run() {
	for {
		select {
		case fn := <-m.inbox:
			fn()
		case <-m.stop:
			return
		}
	}
}

// do runs fn on the manager's owning goroutine and waits for it to finish.
func (m *Manager) do(fn func()) {
	done := make(chan struct{})
	select {
	case m.inbox <- func() { fn(); close(done) }:
	case <-m.stop:
		close(done)
		return
	}
	<-done
}

// Close stops the manager's run loop. No further operation may be called
// afterwards.
func (m *Manager) Close() { close(m.stop) }

// Thread returns a snapshot of the current message thread. Safe to call at
// any time; it round-trips through the mailbox like every other operation.
func (m *Manager) Thread(ctx context.Context) events.Thread {
	var out events.Thread
	m.do(func() { out = append(events.Thread(nil), m.thread...) })
	return out
}

// Tree returns the manager's conversation tree. Exposed for the gateway's
// tree_update frame (spec.md §6.1); callers must not mutate it. The pointer
// is read on the manager's owning goroutine so it observes a consistent
// mid-update state, but the returned *tree.Tree must only be read afterward.
func (m *Manager) Tree() *tree.Tree {
	var t *tree.Tree
	m.do(func() { t = m.tr })
	return t
}

// Start publishes the initial task to the thread and triggers the first
// speaker selection (spec.md §4.1 "Start(task)").
func (m *Manager) Start(ctx context.Context, task string) error {
	var retErr error
	m.do(func() { retErr = m.startLocked(ctx, task) })
	return retErr
}

func (m *Manager) startLocked(ctx context.Context, task string) error {
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.tr.InitializeRoot("You", task, "")

	msg := events.NewChatMessage("You", newID(), task, time.Now())
	if err := m.appendEvent(ctx, msg, false); err != nil {
		return err
	}

	return m.selectAndDispatchLocked(ctx)
}

// OnAgentResponse appends an agent's response (and any inner tool-call
// events) to the thread, checks termination, and selects the next speaker
// if every active speaker has now responded (spec.md §4.1
// "OnAgentResponse(delta)"). callErr, if non-nil, means the container
// itself failed to produce a response at all.
func (m *Manager) OnAgentResponse(ctx context.Context, agentName string, resp agentcontainer.Response, callErr error) error {
	var retErr error
	m.do(func() { retErr = m.handleAgentResponseLocked(ctx, agentName, resp, callErr) })
	return retErr
}

func (m *Manager) handleAgentResponseLocked(ctx context.Context, agentName string, resp agentcontainer.Response, callErr error) error {
	delete(m.activeSpeakers, agentName)

	if callErr != nil {
		m.logger.Error("agent invocation failed", "agent", agentName, "error", callErr)
		return m.terminateLocked(ctx, fmt.Sprintf("agent %q failed: %v", agentName, callErr))
	}

	if m.interrupted {
		return nil
	}

	delta := make([]events.Event, 0, len(resp.InnerMessages)+1)
	delta = append(delta, resp.InnerMessages...)
	delta = append(delta, resp.ChatMessage)

	for _, ev := range delta {
		if err := m.appendEvent(ctx, ev, true); err != nil {
			return m.terminateLocked(ctx, fmt.Sprintf("appending agent event: %v", err))
		}
	}
	if m.metrics != nil {
		m.metrics.TurnsTotal.Inc()
	}

	if m.interrupted {
		return nil
	}
	if len(m.activeSpeakers) > 0 {
		// Other agents dispatched in the same round haven't replied yet.
		return nil
	}

	if reason, stop := m.term.Check(delta); stop {
		return m.terminateLocked(ctx, reason)
	}
	m.currentTurn++
	if m.cfg.MaxTurns > 0 && m.currentTurn >= m.cfg.MaxTurns {
		return m.terminateLocked(ctx, fmt.Sprintf("maximum number of turns %d reached", m.cfg.MaxTurns))
	}

	if m.interrupted {
		return nil
	}
	return m.selectAndDispatchLocked(ctx)
}

// selectAndDispatchLocked starts speaker selection on its own goroutine,
// the same way dispatchToSpeakerLocked already frees the mailbox during an
// agent's own LLM call: the selector's LLM round-trip (and its retry loop,
// selection.go's selectViaLLM) must not run inside this closure, or every
// other call queued behind it on the mailbox - including Interrupt - would
// have to wait for it to finish. selCtx is derived with a CancelFunc stored
// on m so Interrupt can abort the call directly instead of merely queuing
// behind it; the result is delivered back through the mailbox to
// handleSelectionResultLocked once the goroutine finishes.
func (m *Manager) selectAndDispatchLocked(ctx context.Context) error {
	selCtx, cancel := context.WithCancel(ctx)
	m.selectCancel = cancel
	m.selectToken++
	token := m.selectToken

	spanCtx := selCtx
	var endSpan func()
	if m.tracer != nil {
		c, sp := m.tracer.SpeakerSelection(selCtx, m.cfg.Name, m.currentTurn)
		spanCtx = c
		endSpan = func() { sp.End() }
	}

	// Snapshot the thread: it is read from this goroutine concurrently
	// with the actor's own goroutine, which may append further events
	// (e.g. Interrupt's StopMessage) to m.thread while selection is still
	// in flight.
	thread := append(events.Thread(nil), m.thread...)
	start := time.Now()

	go func() {
		name, err := m.sel.Select(spanCtx, m.chain, thread)
		if endSpan != nil {
			endSpan()
		}
		m.do(func() { m.handleSelectionResultLocked(ctx, cancel, token, name, err, start) })
	}()
	return nil
}

// handleSelectionResultLocked runs on the actor goroutine with the result
// of the selection selectAndDispatchLocked spawned. token discards a stale
// result that arrives after a later round has since started (e.g.
// Interrupt followed immediately by SendUserDirected, which starts a new
// round before the canceled selection's goroutine has actually returned).
// A result that arrives after Interrupt alone still carries the current
// token and is discarded because the run is marked interrupted.
func (m *Manager) handleSelectionResultLocked(ctx context.Context, cancel context.CancelFunc, token int, name string, err error, start time.Time) {
	cancel()
	if token != m.selectToken {
		return
	}
	m.selectCancel = nil

	if m.metrics != nil {
		m.metrics.SelectionDuration.Observe(time.Since(start).Seconds())
	}
	if m.interrupted {
		return
	}
	if err != nil {
		if m.metrics != nil {
			m.metrics.SelectionsTotal.WithLabelValues("error").Inc()
		}
		if terr := m.terminateLocked(ctx, fmt.Sprintf("speaker selection failed: %v", err)); terr != nil {
			m.logger.Error("failed to record selection-failure termination", "error", terr)
		}
		return
	}
	if m.metrics != nil {
		m.metrics.SelectionsTotal.WithLabelValues("ok").Inc()
	}
	m.dispatchToSpeakerLocked(ctx, name)
}

func (m *Manager) dispatchToSpeakerLocked(ctx context.Context, name string) {
	container, ok := m.containers[name]
	if !ok {
		m.logger.Error("selected unknown participant", "agent", name)
		return
	}
	m.activeSpeakers[name] = struct{}{}

	go func() {
		state, err := m.chain.CollectStateForAgent(ctx)
		if err != nil {
			_ = m.OnAgentResponse(ctx, name, agentcontainer.Response{}, err)
			return
		}
		resp, err := container.Respond(ctx, state, m.cfg.Participants)
		_ = m.OnAgentResponse(ctx, name, resp, err)
	}()
}

// Interrupt marks the run interrupted, cancels pending agent-input
// requests, clears the active-speaker set, and emits a non-terminal
// StopMessage (spec.md §4.1 "Interrupt()"). It never fails: best-effort
// cleanup happens even if some step would otherwise error.
func (m *Manager) Interrupt(ctx context.Context) {
	m.do(func() { m.interruptLocked(ctx) })
}

func (m *Manager) interruptLocked(ctx context.Context) {
	m.interrupted = true
	m.activeSpeakers = make(map[string]struct{})
	if m.selectCancel != nil {
		m.selectCancel()
		m.selectCancel = nil
	}
	if m.cfg.Queue != nil {
		m.cfg.Queue.CancelAll("")
	}
	stop := events.NewStopMessage(m.cfg.Name, events.StopReasonUserInterrupt, time.Now())
	if err := m.appendEvent(ctx, stop, true); err != nil {
		m.logger.Error("failed to record interrupt", "error", err)
	}
	if m.metrics != nil {
		m.metrics.TerminationsTotal.WithLabelValues("user_interrupt").Inc()
	}
}

// SendUserDirected clears the interrupted flag, optionally trims the
// thread/tree/agent buffers, appends a user message, and dispatches a
// publish-request to target (spec.md §4.1 "SendUserDirected").
func (m *Manager) SendUserDirected(ctx context.Context, target, content string, trimCount int) error {
	var retErr error
	m.do(func() { retErr = m.sendUserDirectedLocked(ctx, target, content, trimCount) })
	return retErr
}

func (m *Manager) sendUserDirectedLocked(ctx context.Context, target, content string, trimCount int) error {
	if _, ok := m.participantSet[target]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, target)
	}
	// A direct dispatch supersedes whatever selection round was in flight:
	// bump selectToken so a stale result from a canceled (or merely slow)
	// selection delivered afterwards is discarded rather than mistaken for
	// a failure of this round (spec.md:271).
	if m.selectCancel != nil {
		m.selectCancel()
		m.selectCancel = nil
	}
	m.selectToken++
	m.interrupted = false

	if _, err := m.tr.CreateBranch(trimCount, content); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrimCount, err)
	}

	entries, err := trim.MessagesToTrim(m.thread, trimCount)
	if err != nil {
		return err
	}
	agentTrims, err := trim.AgentTrimUpAll(m.thread, trimCount, m.cfg.Participants)
	if err != nil {
		return err
	}
	if entries > 0 {
		m.thread = m.thread[:len(m.thread)-entries]
	}
	for name, k := range agentTrims {
		if c, ok := m.containers[name]; ok {
			c.Branch(k)
		}
	}
	if err := m.chain.DispatchBranch(ctx, trimCount, len(m.thread)); err != nil {
		return fmt.Errorf("plugin branch hook: %w", err)
	}

	msg := events.NewChatMessage("You", newID(), content, time.Now())
	m.thread = append(m.thread, msg)
	if err := m.chain.DispatchMessageAdded(ctx, msg, m.thread); err != nil {
		return fmt.Errorf("plugin message-added hook: %w", err)
	}
	if err := m.chain.DispatchUserMessage(ctx, msg, true, target); err != nil {
		return fmt.Errorf("plugin user-message hook: %w", err)
	}
	for name, c := range m.containers {
		if name != target {
			c.Inbound(msg)
		}
	}
	m.emitter.Emit(msg)

	m.dispatchToSpeakerLocked(ctx, target)
	return nil
}

// Reset clears the thread, tree, termination state, and selection memory
// (spec.md §4.1 "Reset()").
func (m *Manager) Reset(ctx context.Context) {
	m.do(func() { m.resetLocked(ctx) })
}

func (m *Manager) resetLocked(context.Context) {
	if m.selectCancel != nil {
		m.selectCancel()
		m.selectCancel = nil
	}
	m.selectToken++
	m.thread = nil
	m.tr.Reset()
	m.term.Reset()
	m.currentTurn = 0
	m.interrupted = false
	m.started = false
	m.activeSpeakers = make(map[string]struct{})
	m.sel.previousSpeaker = ""
}

// managerState is the JSON document SaveState/LoadState round-trip: the
// flat thread (as kind-tagged event dicts, per spec.md §6.4), selection
// metadata, and every plugin's opaque state blob.
type managerState struct {
	Thread          events.Thread   `json:"thread"`
	PreviousSpeaker string          `json:"previous_speaker"`
	CurrentTurn     int             `json:"current_turn"`
	Plugins         json.RawMessage `json:"plugins,omitempty"`
}

// SaveState serializes the thread, selection metadata, and plugin states.
// The conversation tree itself is persisted separately via
// internal/tree.Tree.SaveToFile (spec.md §6.4).
func (m *Manager) SaveState(ctx context.Context) ([]byte, error) {
	var data []byte
	var retErr error
	m.do(func() {
		pluginData, err := m.chain.SaveAll(ctx)
		if err != nil {
			retErr = fmt.Errorf("saving plugin state: %w", err)
			return
		}
		doc := managerState{
			Thread:          m.thread,
			PreviousSpeaker: m.sel.previousSpeaker,
			CurrentTurn:     m.currentTurn,
			Plugins:         pluginData,
		}
		data, retErr = json.MarshalIndent(doc, "", "  ")
	})
	return data, retErr
}

// LoadState restores a document produced by SaveState.
func (m *Manager) LoadState(ctx context.Context, data []byte) error {
	var retErr error
	m.do(func() {
		var doc managerState
		if err := json.Unmarshal(data, &doc); err != nil {
			retErr = fmt.Errorf("unmarshaling manager state: %w", err)
			return
		}
		m.thread = doc.Thread
		m.sel.previousSpeaker = doc.PreviousSpeaker
		m.currentTurn = doc.CurrentTurn
		if len(doc.Plugins) > 0 {
			if err := m.chain.LoadAll(ctx, doc.Plugins); err != nil {
				retErr = fmt.Errorf("loading plugin state: %w", err)
				return
			}
		}
		m.started = true
	})
	return retErr
}

// terminateLocked resets termination/turn state and emits the StopMessage
// that ends the run (spec.md §4.1 "Termination").
func (m *Manager) terminateLocked(ctx context.Context, reason string) error {
	m.term.Reset()
	m.currentTurn = 0
	m.activeSpeakers = make(map[string]struct{})
	if m.metrics != nil {
		m.metrics.TerminationsTotal.WithLabelValues(terminationOutcome(reason)).Inc()
	}
	stop := events.NewStopMessage(m.cfg.Name, reason, time.Now())
	return m.appendEvent(ctx, stop, true)
}

func terminationOutcome(reason string) string {
	switch {
	case strings.Contains(reason, "failed"):
		return "error"
	case strings.Contains(reason, "turns"):
		return "max_turns"
	default:
		return "predicate"
	}
}

// appendEvent appends ev to the thread, optionally mirrors it into the
// conversation tree, runs the plugin on_message_added hook, forwards
// ChatMessages into every other agent's inbound buffer, and broadcasts it
// to observers. addToTree is false only for the very first Start message,
// whose tree node InitializeRoot already created.
func (m *Manager) appendEvent(ctx context.Context, ev events.Event, addToTree bool) error {
	if addToTree {
		switch e := ev.(type) {
		case events.ChatMessage:
			node, err := m.tr.AddNode(e.EventSource(), e.Content, "", tree.NodeTypeMessage)
			if err != nil {
				return fmt.Errorf("tree add node: %w", err)
			}
			e.NodeID = node.ID
			ev = e
		case events.ToolCallRequest:
			node, err := m.tr.AddNode(e.EventSource(), renderToolCalls(e.Calls), "", tree.NodeTypeToolCall)
			if err != nil {
				return fmt.Errorf("tree add node: %w", err)
			}
			e.NodeID = node.ID
			ev = e
		case events.ToolCallExecution:
			node, err := m.tr.AddNode(e.EventSource(), renderToolResults(e.Results), "", tree.NodeTypeToolExecution)
			if err != nil {
				return fmt.Errorf("tree add node: %w", err)
			}
			e.NodeID = node.ID
			ev = e
		}
	}

	m.thread = append(m.thread, ev)

	if err := m.chain.DispatchMessageAdded(ctx, ev, m.thread); err != nil {
		return fmt.Errorf("plugin message-added hook: %w", err)
	}

	if cm, ok := ev.(events.ChatMessage); ok {
		for name, c := range m.containers {
			if name != cm.EventSource() {
				c.Inbound(cm)
			}
		}
	}

	m.emitter.Emit(ev)
	return nil
}

func renderToolCalls(calls []events.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, fmt.Sprintf("%s(%s)", c.Name, c.Args))
	}
	return strings.Join(parts, ", ")
}

func renderToolResults(results []events.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Content))
	}
	return strings.Join(parts, "; ")
}

func newID() string { return uuid.NewString() }
