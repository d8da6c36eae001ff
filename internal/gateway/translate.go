package gateway

import (
	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/tree"
)

// translateEvent converts one manager event into its outbound wire frame,
// matching the table in spec.md §4.7 step 6: "ChatMessage -> AgentMessage,
// ToolCallRequest/Execution -> ToolCall/ToolExecution..., StateUpdateEvent
// -> StateUpdate, AnalysisUpdate pass-through, StopMessage -> RunTermination".
// UserInputRequested is translated into an AgentInputRequestFrame.
// SelectorEvent and StreamingChunk have no translation here (see the
// default case).
func translateEvent(ev events.Event) (any, bool) {
	switch e := ev.(type) {
	case events.ChatMessage:
		return AgentMessageFrame{
			outboundEnvelope: newEnvelope(TypeAgentMessage),
			AgentName:        e.EventSource(),
			Content:          e.Content,
			NodeID:           e.NodeID,
		}, true
	case events.ToolCallRequest:
		tools := make([]ToolCallWire, 0, len(e.Calls))
		for _, c := range e.Calls {
			tools = append(tools, ToolCallWire{ID: c.ID, Name: c.Name, Arguments: c.Args})
		}
		return ToolCallFrame{
			outboundEnvelope: newEnvelope(TypeToolCall),
			AgentName:        e.EventSource(),
			Tools:            tools,
			NodeID:           e.NodeID,
		}, true
	case events.ToolCallExecution:
		results := make([]ToolExecutionResultWire, 0, len(e.Results))
		for _, r := range e.Results {
			results = append(results, ToolExecutionResultWire{
				ToolCallID: r.CallID,
				ToolName:   r.Name,
				Success:    r.OK,
				Result:     r.Content,
			})
		}
		return ToolExecutionFrame{
			outboundEnvelope: newEnvelope(TypeToolExecution),
			AgentName:        e.EventSource(),
			Results:          results,
			NodeID:           e.NodeID,
		}, true
	case events.StateUpdate:
		return StateUpdateFrame{
			outboundEnvelope: newEnvelope(TypeStateUpdate),
			StateOfRun:       e.StateOfRun,
			ToolCallFacts:    e.ToolCallFacts,
			HandoffContext:   e.HandoffContext,
			MessageIndex:     e.MessageIndex,
		}, true
	case events.AnalysisUpdate:
		scores := make(map[string]ComponentScoreWire, len(e.Scores))
		for label, score := range e.Scores {
			scores[label] = ComponentScoreWire{Score: score.Score, Reasoning: score.Reasoning}
		}
		return AnalysisUpdateFrame{
			outboundEnvelope:    newEnvelope(TypeAnalysisUpdate),
			NodeID:              e.NodeID,
			Scores:              scores,
			TriggeredComponents: e.Triggered,
		}, true
	case events.StopMessage:
		status := RunStatusCompleted
		if e.Content == events.StopReasonUserInterrupt {
			status = RunStatusInterrupted
		}
		return RunTerminationFrame{
			outboundEnvelope: newEnvelope(TypeRunTermination),
			Status:           status,
			Reason:           e.Content,
			Source:           e.EventSource(),
		}, true
	case events.UserInputRequested:
		return AgentInputRequestFrame{
			outboundEnvelope: newEnvelope(TypeAgentInputRequest),
			RequestID:        e.RequestID,
			Prompt:           e.Prompt,
			AgentName:        e.EventSource(),
		}, true
	default:
		// events.StreamingChunk and events.SelectorEvent are intentionally
		// not part of this table: streaming text is forwarded by the
		// connection loop directly (it needs the full_message_id
		// correlation, not a generic translation), and selector events are
		// internal bookkeeping never shown to observers.
		return nil, false
	}
}

// treeUpdatePayload renders t as the full-tree wire shape
// ("{root, current_branch_id}", spec.md §6.1).
func treeUpdatePayload(t *tree.Tree) TreeUpdateFrame {
	return TreeUpdateFrame{
		outboundEnvelope: newEnvelope(TypeTreeUpdate),
		Root:             t.Root(),
		CurrentBranchID:  t.CurrentBranchID(),
	}
}
