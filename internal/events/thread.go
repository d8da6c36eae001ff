package events

import "fmt"

// Thread is the ordered sequence of events the manager currently holds live.
type Thread []Event

// ValidateToolPairing checks invariant 4: every ToolCallExecution at index k
// is immediately preceded at k-1 by a ToolCallRequest with the same set of
// call ids, with no other event between them.
func (t Thread) ValidateToolPairing() error {
	for i, ev := range t {
		exec, ok := ev.(ToolCallExecution)
		if !ok {
			continue
		}
		if i == 0 {
			return fmt.Errorf("tool call execution at index %d has no preceding request", i)
		}
		req, ok := t[i-1].(ToolCallRequest)
		if !ok {
			return fmt.Errorf("tool call execution at index %d is not preceded by a tool call request", i)
		}
		if !sameCallIDs(req.CallIDs(), exec.CallIDs()) {
			return fmt.Errorf("tool call execution at index %d does not match the call ids of its preceding request", i)
		}
	}
	return nil
}

func sameCallIDs(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// LastMessageIndexFrom returns the index of the last ChatMessage in the
// thread whose source equals agentName, or -1 if the agent never spoke.
func (t Thread) LastMessageIndexFrom(agentName string) int {
	for i := len(t) - 1; i >= 0; i-- {
		if cm, ok := t[i].(ChatMessage); ok && cm.EventSource() == agentName {
			return i
		}
	}
	return -1
}
