// Package events defines the canonical sum type of messages that flow
// through the group-chat manager, the plugin layer, and the gateway.
package events

import "time"

// Kind discriminates the concrete type of an Event for wire encoding and
// for the one dispatch boundary (the gateway translator) that needs a
// type switch instead of a polymorphic method call.
type Kind string

const (
	KindChatMessage        Kind = "chat_message"
	KindStreamingChunk     Kind = "streaming_chunk"
	KindToolCallRequest    Kind = "tool_call_request"
	KindToolCallExecution  Kind = "tool_call_execution"
	KindSelectorEvent      Kind = "selector_event"
	KindStopMessage        Kind = "stop_message"
	KindUserInputRequested Kind = "user_input_requested"
	KindStateUpdate        Kind = "state_update"
	KindAnalysisUpdate     Kind = "analysis_update"
)

// Event is the closed set of things that can appear in a message thread.
// Only the types defined in this package implement it (the unexported
// method prevents other packages from adding new variants).
type Event interface {
	Kind() Kind
	// EventSource identifies the agent or user that produced the event.
	EventSource() string
	// Timestamp is when the manager appended the event to the thread.
	Timestamp() time.Time

	isEvent()
}

// base is embedded in every concrete event to carry the fields common to
// all of them and to satisfy the unexported marker method.
type base struct {
	Source string    `json:"source"`
	At     time.Time `json:"timestamp"`
}

func (b base) EventSource() string  { return b.Source }
func (b base) Timestamp() time.Time { return b.At }
func (base) isEvent()               {}

// ChatMessage is a complete utterance from an agent or a user.
type ChatMessage struct {
	base
	ID      string `json:"id"`
	Content string `json:"content"`
	// NodeID is the conversation-tree node this message materialised as,
	// set by the manager immediately after the corresponding tree.AddNode
	// call so the gateway can translate this event into an
	// AgentMessageFrame carrying the same node_id (spec.md §6.1).
	NodeID string `json:"node_id,omitempty"`
}

func (ChatMessage) Kind() Kind { return KindChatMessage }

// NewChatMessage constructs a ChatMessage stamped with at.
func NewChatMessage(source, id, content string, at time.Time) ChatMessage {
	return ChatMessage{base: base{Source: source, At: at}, ID: id, Content: content}
}

// StreamingChunk is partial text preceding a ChatMessage with a matching
// FullMessageID. Chunks never count toward trim depth (spec open question iii).
type StreamingChunk struct {
	base
	Content       string `json:"content"`
	FullMessageID string `json:"full_message_id"`
}

func (StreamingChunk) Kind() Kind { return KindStreamingChunk }

// NewStreamingChunk constructs a StreamingChunk stamped with at.
func NewStreamingChunk(source, content, fullMessageID string, at time.Time) StreamingChunk {
	return StreamingChunk{base: base{Source: source, At: at}, Content: content, FullMessageID: fullMessageID}
}

// ToolCall describes a single tool invocation requested by an agent.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolCallRequest and ToolCallExecution always appear as an adjacent pair
// in the thread and are counted as one logical node for trimming.
type ToolCallRequest struct {
	base
	Calls  []ToolCall `json:"calls"`
	NodeID string     `json:"node_id,omitempty"`
}

func (ToolCallRequest) Kind() Kind { return KindToolCallRequest }

// NewToolCallRequest constructs a ToolCallRequest stamped with at.
func NewToolCallRequest(source string, calls []ToolCall, at time.Time) ToolCallRequest {
	return ToolCallRequest{base: base{Source: source, At: at}, Calls: calls}
}

// CallIDs returns the set of call ids this request covers, used to match
// against the following ToolCallExecution.
func (r ToolCallRequest) CallIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(r.Calls))
	for _, c := range r.Calls {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// ToolResult is the outcome of one call_id from a ToolCallRequest.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Content string `json:"content"`
}

type ToolCallExecution struct {
	base
	Results []ToolResult `json:"results"`
	NodeID  string       `json:"node_id,omitempty"`
}

func (ToolCallExecution) Kind() Kind { return KindToolCallExecution }

// NewToolCallExecution constructs a ToolCallExecution stamped with at.
func NewToolCallExecution(source string, results []ToolResult, at time.Time) ToolCallExecution {
	return ToolCallExecution{base: base{Source: source, At: at}, Results: results}
}

// CallIDs returns the set of call ids this execution resolves.
func (e ToolCallExecution) CallIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(e.Results))
	for _, r := range e.Results {
		ids[r.CallID] = struct{}{}
	}
	return ids
}

// SelectorEvent carries the raw text a speaker-selection LLM call produced.
// Internal: the gateway never forwards it to observers.
type SelectorEvent struct {
	base
	Content string `json:"content"`
}

func (SelectorEvent) Kind() Kind { return KindSelectorEvent }

// StopMessage terminates a run. It is non-terminal for the owning Session:
// the session itself survives and can be resumed via SendUserDirected.
type StopMessage struct {
	base
	Content string `json:"content"`
}

func (StopMessage) Kind() Kind { return KindStopMessage }

// NewStopMessage constructs a StopMessage stamped with at.
func NewStopMessage(source, content string, at time.Time) StopMessage {
	return StopMessage{base: base{Source: source, At: at}, Content: content}
}

// Well-known StopMessage contents.
const (
	StopReasonUserInterrupt = "USER_INTERRUPT"
)

// UserInputRequested is emitted when a user-proxy agent needs a human answer.
type UserInputRequested struct {
	base
	RequestID string `json:"request_id"`
	Prompt    string `json:"prompt"`
}

func (UserInputRequested) Kind() Kind { return KindUserInputRequested }

// NewUserInputRequested constructs a UserInputRequested stamped with at.
func NewUserInputRequested(source, requestID, prompt string, at time.Time) UserInputRequested {
	return UserInputRequested{base: base{Source: source, At: at}, RequestID: requestID, Prompt: prompt}
}

// StateUpdate carries the three state-context strings as of one message
// index. Nothing in this module constructs or emits one: the state-context
// plugin has no emitter.
type StateUpdate struct {
	base
	StateOfRun     string `json:"state_of_run"`
	ToolCallFacts  string `json:"tool_call_facts"`
	HandoffContext string `json:"handoff_context"`
	MessageIndex   int    `json:"message_index"`
}

func (StateUpdate) Kind() Kind { return KindStateUpdate }

// ComponentScore is a single analysis component's score for one message.
type ComponentScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// AnalysisUpdate is emitted by the analysis-watchlist plugin after scoring
// an agent ChatMessage against the configured components.
type AnalysisUpdate struct {
	base
	NodeID    string                    `json:"node_id"`
	Scores    map[string]ComponentScore `json:"scores"`
	Triggered []string                  `json:"triggered"`
}

func (AnalysisUpdate) Kind() Kind { return KindAnalysisUpdate }

// IsMessageNode reports whether ev counts as a "message" for trim-depth and
// per-agent buffer purposes: only fully materialised ChatMessage events
// count. StreamingChunk never does (spec open question iii), and tool
// request/execution pairs are counted separately as one logical node.
func IsMessageNode(ev Event) bool {
	_, ok := ev.(ChatMessage)
	return ok
}
