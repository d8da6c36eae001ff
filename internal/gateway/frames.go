// Package gateway implements the websocket observer protocol named in
// spec.md §4.7 and §6.1: one goroutine per connection, a bootstrap
// handshake, inbound frame demultiplexing into groupchat.Manager and
// session.Manager calls, and outbound translation of events.Event into
// the wire frame shapes the UI expects. Grounded on the teacher's
// internal/gateway/ws_control_plane.go (connection lifecycle) and
// internal/gateway/ws_schema.go (request validation).
package gateway

import "time"

// Frame type names, unchanged from spec.md §6.1.
const (
	// Inbound (client -> server).
	TypeStartRun                  = "start_run"
	TypeRunStartConfirmed         = "run_start_confirmed"
	TypeUserInterrupt             = "user_interrupt"
	TypeUserDirectedMessage       = "user_directed_message"
	TypeHumanInputResponse        = "human_input_response"
	TypeTerminateRequest          = "terminate_request"
	TypeComponentGenerationRequest = "component_generation_request"

	// Outbound (server -> client).
	TypeAgentTeamNames       = "agent_team_names"
	TypeAgentDetails         = "agent_details"
	TypeParticipantNames     = "participant_names"
	TypeAgentMessage         = "agent_message"
	TypeToolCall             = "tool_call"
	TypeToolExecution        = "tool_execution"
	TypeTreeUpdate           = "tree_update"
	TypeStateUpdate          = "state_update"
	TypeAnalysisUpdate       = "analysis_update"
	TypeAnalysisComponentsInit = "analysis_components_init"
	TypeAgentInputRequest    = "agent_input_request"
	TypeInterruptAcknowledged = "interrupt_acknowledged"
	TypeStreamEnd            = "stream_end"
	TypeRunTermination       = "run_termination"
	TypeError                = "error"
)

// Run termination statuses, unchanged from spec.md §6.1.
const (
	RunStatusCompleted   = "COMPLETED"
	RunStatusInterrupted = "INTERRUPTED"
)

// InboundFrame is every client->server frame shape folded into one
// struct, mirroring the teacher's flat wsFrame envelope
// (internal/gateway/ws_control_plane.go) rather than a tagged union: the
// frame's Type field selects which subset of the optional fields the
// handler reads, and unknown/absent fields are simply left at their zero
// value.
type InboundFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// start_run / run_start_confirmed
	SessionID        string `json:"session_id,omitempty"`
	InitialTopic     string `json:"initial_topic,omitempty"`
	CompanyName      string `json:"company_name,omitempty"`
	BillName         string `json:"bill_name,omitempty"`
	Congress         string `json:"congress,omitempty"`
	AnalysisPrompt   string `json:"analysis_prompt,omitempty"`
	TriggerThreshold int    `json:"trigger_threshold,omitempty"`

	// user_directed_message
	Content     string `json:"content,omitempty"`
	TargetAgent string `json:"target_agent,omitempty"`
	TrimCount   int    `json:"trim_count,omitempty"`

	// human_input_response
	RequestID string `json:"request_id,omitempty"`
	UserInput string `json:"user_input,omitempty"`
}

// outboundEnvelope is embedded in every outbound frame struct to carry
// the type/timestamp fields spec.md §6.1 requires on all of them.
type outboundEnvelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func newEnvelope(frameType string) outboundEnvelope {
	return outboundEnvelope{Type: frameType, Timestamp: time.Now()}
}

type AgentTeamNamesFrame struct {
	outboundEnvelope
	Names []string `json:"names"`
}

func NewAgentTeamNamesFrame(names []string) AgentTeamNamesFrame {
	return AgentTeamNamesFrame{outboundEnvelope: newEnvelope(TypeAgentTeamNames), Names: names}
}

type AgentDetail struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AgentDetailsFrame struct {
	outboundEnvelope
	Agents []AgentDetail `json:"agents"`
}

func NewAgentDetailsFrame(agents []AgentDetail) AgentDetailsFrame {
	return AgentDetailsFrame{outboundEnvelope: newEnvelope(TypeAgentDetails), Agents: agents}
}

type ParticipantNamesFrame struct {
	outboundEnvelope
	Names []string `json:"names"`
}

func NewParticipantNamesFrame(names []string) ParticipantNamesFrame {
	return ParticipantNamesFrame{outboundEnvelope: newEnvelope(TypeParticipantNames), Names: names}
}

type AgentMessageFrame struct {
	outboundEnvelope
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
	Summary   string `json:"summary"`
	NodeID    string `json:"node_id"`
}

type ToolCallWire struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolCallFrame struct {
	outboundEnvelope
	AgentName string         `json:"agent_name"`
	Tools     []ToolCallWire `json:"tools"`
	NodeID    string         `json:"node_id"`
}

type ToolExecutionResultWire struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Success    bool   `json:"success"`
	Result     string `json:"result"`
}

type ToolExecutionFrame struct {
	outboundEnvelope
	AgentName string                     `json:"agent_name"`
	Results   []ToolExecutionResultWire `json:"results"`
	NodeID    string                     `json:"node_id"`
}

type TreeUpdateFrame struct {
	outboundEnvelope
	Root            any    `json:"root"`
	CurrentBranchID string `json:"current_branch_id"`
}

type StateUpdateFrame struct {
	outboundEnvelope
	StateOfRun     string `json:"state_of_run"`
	ToolCallFacts  string `json:"tool_call_facts"`
	HandoffContext string `json:"handoff_context"`
	MessageIndex   int    `json:"message_index"`
}

type ComponentScoreWire struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

type AnalysisUpdateFrame struct {
	outboundEnvelope
	NodeID              string                        `json:"node_id"`
	Scores              map[string]ComponentScoreWire `json:"scores"`
	TriggeredComponents []string                      `json:"triggered_components"`
}

type AnalysisComponentWire struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

type AnalysisComponentsInitFrame struct {
	outboundEnvelope
	Components []AnalysisComponentWire `json:"components"`
}

type AgentInputRequestFrame struct {
	outboundEnvelope
	RequestID       string `json:"request_id"`
	Prompt          string `json:"prompt"`
	AgentName       string `json:"agent_name"`
	FeedbackContext string `json:"feedback_context,omitempty"`
}

type InterruptAcknowledgedFrame struct {
	outboundEnvelope
}

func NewInterruptAcknowledgedFrame() InterruptAcknowledgedFrame {
	return InterruptAcknowledgedFrame{outboundEnvelope: newEnvelope(TypeInterruptAcknowledged)}
}

type StreamEndFrame struct {
	outboundEnvelope
	Reason string `json:"reason"`
}

func NewStreamEndFrame(reason string) StreamEndFrame {
	return StreamEndFrame{outboundEnvelope: newEnvelope(TypeStreamEnd), Reason: reason}
}

type RunTerminationFrame struct {
	outboundEnvelope
	Status string `json:"status"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

type ErrorFrame struct {
	outboundEnvelope
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func NewErrorFrame(code, message string) ErrorFrame {
	return ErrorFrame{outboundEnvelope: newEnvelope(TypeError), ErrorCode: code, Message: message}
}
