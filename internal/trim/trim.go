// Package trim converts the group-chat manager's logical trim count — which
// counts both message nodes and tool-call request/execution pairs as one
// unit each — into the concrete slice length to drop from the manager's
// thread and the per-agent counts each agent container should drop from its
// own inbound buffer.
//
// Grounded on the original implementation's agent buffer/node trim mapping:
// each agent's buffer only holds ChatMessages received since it last spoke,
// so the same manager-level trim count resolves to a different message
// count per agent depending on when they last spoke.
package trim

import (
	"fmt"

	"github.com/haasonsaas/groupchat/internal/events"
)

// ErrUnmatchedExecution is returned when a ToolCallExecution is found
// without an immediately preceding ToolCallRequest while walking the thread.
var ErrUnmatchedExecution = fmt.Errorf("tool call execution without matching preceding request")

// MessagesToTrim walks thread from the end and returns the number of thread
// entries to drop so that exactly managerTrimUp logical nodes are removed.
// A (ToolCallRequest, ToolCallExecution) pair counts as one logical node and
// contributes two entries to the returned count.
func MessagesToTrim(thread events.Thread, managerTrimUp int) (int, error) {
	if managerTrimUp < 0 {
		return 0, fmt.Errorf("manager trim count must be non-negative, got %d", managerTrimUp)
	}
	if managerTrimUp == 0 {
		return 0, nil
	}
	if len(thread) == 0 {
		return 0, fmt.Errorf("cannot trim from an empty thread")
	}

	entries := 0
	nodesCounted := 0
	i := len(thread) - 1

	for i >= 0 && nodesCounted < managerTrimUp {
		if _, ok := thread[i].(events.ToolCallExecution); ok {
			if i == 0 {
				return 0, ErrUnmatchedExecution
			}
			if _, ok := thread[i-1].(events.ToolCallRequest); !ok {
				return 0, ErrUnmatchedExecution
			}
			entries += 2
			nodesCounted++
			i -= 2
			continue
		}
		entries++
		nodesCounted++
		i--
	}

	if nodesCounted < managerTrimUp {
		return 0, fmt.Errorf("cannot trim %d nodes: only %d available in thread", managerTrimUp, nodesCounted)
	}
	return entries, nil
}

// AgentTrimUp computes how many messages agentName should drop from its own
// inbound buffer given a manager-level trim of managerTrimUp logical nodes.
// Tool-call pairs never count toward an agent's buffer (agents never see
// raw tool events, only ChatMessages), and a message only counts for an
// agent if it falls after that agent's own last ChatMessage in the thread
// (i.e. it is actually still sitting in their buffer).
func AgentTrimUp(thread events.Thread, managerTrimUp int, agentName string) (int, error) {
	if managerTrimUp < 0 {
		return 0, fmt.Errorf("manager trim count must be non-negative, got %d", managerTrimUp)
	}
	if managerTrimUp == 0 {
		return 0, nil
	}
	if len(thread) == 0 {
		return 0, fmt.Errorf("cannot trim from an empty thread")
	}

	lastIdx := thread.LastMessageIndexFrom(agentName)
	bufferStart := 0
	if lastIdx >= 0 {
		bufferStart = lastIdx + 1
	}

	agentCount := 0
	nodesCounted := 0
	i := len(thread) - 1

	for i >= 0 && nodesCounted < managerTrimUp {
		if _, ok := thread[i].(events.ToolCallExecution); ok {
			if i == 0 {
				return 0, ErrUnmatchedExecution
			}
			if _, ok := thread[i-1].(events.ToolCallRequest); !ok {
				return 0, ErrUnmatchedExecution
			}
			nodesCounted++
			i -= 2
			continue
		}
		if events.IsMessageNode(thread[i]) && i >= bufferStart {
			agentCount++
		}
		nodesCounted++
		i--
	}

	if nodesCounted < managerTrimUp {
		return 0, fmt.Errorf("cannot trim %d nodes: only %d available in thread", managerTrimUp, nodesCounted)
	}
	return agentCount, nil
}

// AgentTrimUpAll computes AgentTrimUp for every name in participantNames,
// used by the manager to broadcast a single Branch signal carrying a
// per-agent trim map.
func AgentTrimUpAll(thread events.Thread, managerTrimUp int, participantNames []string) (map[string]int, error) {
	out := make(map[string]int, len(participantNames))
	for _, name := range participantNames {
		n, err := AgentTrimUp(thread, managerTrimUp, name)
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}
