// Package tree implements the branching conversation history that backs a
// group-chat session: every message, tool call, and tool execution the
// manager appends becomes a Node, branching (via CreateBranch) marks the
// abandoned path inactive rather than discarding it, and the whole thing is
// persisted as one JSON document with atomic writes.
package tree

import "time"

// NodeType distinguishes a conversational message from the tool-call
// bookkeeping nodes the manager also threads into the tree, so that walks
// which only care about "messages" (branch trimming, display) can skip the
// rest.
type NodeType string

const (
	NodeTypeMessage        NodeType = "message"
	NodeTypeToolCall       NodeType = "tool_call"
	NodeTypeToolExecution  NodeType = "tool_execution"
)

// Node is one entry in the conversation tree. Children are held by pointer
// so that CreateBranch can mark a subtree inactive in place without
// rebuilding it.
type Node struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agent_name"`
	Message   string    `json:"message"`
	Summary   string    `json:"summary"`
	ParentID  string    `json:"parent,omitempty"`
	Children  []*Node   `json:"children"`
	IsActive  bool      `json:"is_active"`
	BranchID  string    `json:"branch_id"`
	Timestamp time.Time `json:"timestamp"`
	NodeType  NodeType  `json:"node_type"`
}

// shallowCopy returns a Node with the same scalar fields and an empty (or
// depth-limited) children slice, used by Subtree when a caller asks for a
// bounded view rather than the live node.
func (n *Node) shallowCopy(children []*Node) *Node {
	return &Node{
		ID:        n.ID,
		AgentName: n.AgentName,
		Message:   n.Message,
		Summary:   n.Summary,
		ParentID:  n.ParentID,
		Children:  children,
		IsActive:  n.IsActive,
		BranchID:  n.BranchID,
		Timestamp: n.Timestamp,
		NodeType:  n.NodeType,
	}
}
