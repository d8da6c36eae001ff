package tree

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Tree is the branching conversation history for a single session. It is
// not safe for concurrent use; callers serialize access the same way the
// group-chat manager serializes access to its message thread (single
// goroutine owns it via a mailbox channel).
type Tree struct {
	root            *Node
	currentNode     *Node
	currentBranchID string
	nodeMap         map[string]*Node
}

// New returns an empty, uninitialized Tree. Call InitializeRoot before any
// other operation.
func New() *Tree {
	return &Tree{currentBranchID: "main", nodeMap: make(map[string]*Node)}
}

// ErrNotInitialized is returned by every operation that requires a root.
var ErrNotInitialized = fmt.Errorf("tree not initialized: call InitializeRoot first")

// InitializeRoot creates the tree's first node and makes it both root and
// current.
func (t *Tree) InitializeRoot(agentName, message, summary string) *Node {
	n := &Node{
		ID:        generateID("node"),
		AgentName: agentName,
		Message:   message,
		Summary:   summary,
		Children:  nil,
		IsActive:  true,
		BranchID:  t.currentBranchID,
		Timestamp: time.Now(),
		NodeType:  NodeTypeMessage,
	}
	t.root = n
	t.currentNode = n
	t.nodeMap[n.ID] = n
	return n
}

// AddNode appends a new node as a child of the current node and advances
// current to it. A nil return with no error means the caller's agentName
// was the manager itself, whose own utterances never enter the tree.
func (t *Tree) AddNode(agentName, message, summary string, nodeType NodeType) (*Node, error) {
	if t.currentNode == nil {
		return nil, ErrNotInitialized
	}
	if agentName == managerAgentName {
		return nil, nil
	}

	n := &Node{
		ID:        generateID("node"),
		AgentName: agentName,
		Message:   message,
		Summary:   summary,
		ParentID:  t.currentNode.ID,
		Children:  nil,
		IsActive:  true,
		BranchID:  t.currentBranchID,
		Timestamp: time.Now(),
		NodeType:  nodeType,
	}
	t.currentNode.Children = append(t.currentNode.Children, n)
	t.currentNode = n
	t.nodeMap[n.ID] = n
	return n, nil
}

// managerAgentName is the sentinel source name the manager's own internal
// bookkeeping events carry; those never become tree nodes.
const managerAgentName = "GroupChatManager"

// FindByID looks up a node by id.
func (t *Tree) FindByID(id string) (*Node, bool) {
	n, ok := t.nodeMap[id]
	return n, ok
}

// CurrentNode returns the leaf of the active branch.
func (t *Tree) CurrentNode() *Node { return t.currentNode }

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

// CurrentBranchID returns the branch id new nodes are tagged with.
func (t *Tree) CurrentBranchID() string { return t.currentBranchID }

// CreateBranch walks up from the current node, skipping only
// NodeTypeMessage nodes up to trimCount of them (tool-call bookkeeping
// nodes are passed through without counting), marks the branch that
// diverges from that point inactive, and attaches a new user node there as
// the start of a fresh branch.
func (t *Tree) CreateBranch(trimCount int, userMessage string) (*Node, error) {
	if t.currentNode == nil || t.root == nil {
		return nil, ErrNotInitialized
	}
	if trimCount < 0 {
		trimCount = 0
	}

	oldCurrent := t.currentNode
	branchPoint := t.currentNode
	skipped := 0

	for skipped < trimCount {
		if branchPoint.ParentID == "" {
			return nil, fmt.Errorf("trim count %d exceeds available message nodes", trimCount)
		}
		parent, ok := t.nodeMap[branchPoint.ParentID]
		if !ok {
			return nil, fmt.Errorf("trim count %d exceeds available message nodes", trimCount)
		}
		branchPoint = parent
		if branchPoint.NodeType == NodeTypeMessage {
			skipped++
		}
	}

	if oldChild := t.findOldBranchChild(branchPoint, oldCurrent); oldChild != nil {
		markDescendantsInactive(oldChild)
	}

	newBranchID := generateID("branch")
	t.currentBranchID = newBranchID

	userNode := &Node{
		ID:        generateID("node"),
		AgentName: "You",
		Message:   userMessage,
		ParentID:  branchPoint.ID,
		Children:  nil,
		IsActive:  true,
		BranchID:  newBranchID,
		Timestamp: time.Now(),
		NodeType:  NodeTypeMessage,
	}
	branchPoint.Children = append(branchPoint.Children, userNode)
	t.currentNode = userNode
	t.nodeMap[userNode.ID] = userNode
	return userNode, nil
}

func (t *Tree) findOldBranchChild(branchPoint, branchLeaf *Node) *Node {
	for _, child := range branchPoint.Children {
		if child.ID == branchLeaf.ID || t.isAncestorOf(child, branchLeaf) {
			return child
		}
	}
	return nil
}

func (t *Tree) isAncestorOf(potentialAncestor, descendant *Node) bool {
	current := descendant
	for current.ParentID != "" {
		parent, ok := t.nodeMap[current.ParentID]
		if !ok {
			break
		}
		if parent.ID == potentialAncestor.ID {
			return true
		}
		current = parent
	}
	return false
}

func markDescendantsInactive(n *Node) {
	n.IsActive = false
	for _, c := range n.Children {
		markDescendantsInactive(c)
	}
}

// Reset clears the tree back to its zero state.
func (t *Tree) Reset() {
	t.root = nil
	t.currentNode = nil
	t.currentBranchID = "main"
	t.nodeMap = make(map[string]*Node)
}

// ActivePath returns the nodes from root to the current leaf, in order.
func (t *Tree) ActivePath() ([]*Node, error) {
	if t.root == nil || t.currentNode == nil {
		return nil, ErrNotInitialized
	}
	var path []*Node
	for n := t.currentNode; ; {
		path = append(path, n)
		if n.ParentID == "" {
			break
		}
		parent, ok := t.nodeMap[n.ParentID]
		if !ok {
			break
		}
		n = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// RecentNodes returns the last count nodes of the active path, most recent
// first.
func (t *Tree) RecentNodes(count int) ([]*Node, error) {
	path, err := t.ActivePath()
	if err != nil {
		return nil, err
	}
	if count > len(path) {
		count = len(path)
	}
	tail := path[len(path)-count:]
	out := make([]*Node, len(tail))
	for i, n := range tail {
		out[len(tail)-1-i] = n
	}
	return out, nil
}

// Ancestors returns id's ancestors, root-first.
func (t *Tree) Ancestors(id string) ([]*Node, error) {
	n, ok := t.nodeMap[id]
	if !ok {
		return nil, fmt.Errorf("node %q not found", id)
	}
	var out []*Node
	for n.ParentID != "" {
		parent, ok := t.nodeMap[n.ParentID]
		if !ok {
			break
		}
		out = append(out, parent)
		n = parent
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Descendants returns all nodes below id, pre-order.
func (t *Tree) Descendants(id string) ([]*Node, error) {
	n, ok := t.nodeMap[id]
	if !ok {
		return nil, fmt.Errorf("node %q not found", id)
	}
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out, nil
}

// Siblings returns id's siblings, excluding id itself. The root has none.
func (t *Tree) Siblings(id string) ([]*Node, error) {
	n, ok := t.nodeMap[id]
	if !ok {
		return nil, fmt.Errorf("node %q not found", id)
	}
	if n.ParentID == "" {
		return nil, nil
	}
	parent, ok := t.nodeMap[n.ParentID]
	if !ok {
		return nil, nil
	}
	var out []*Node
	for _, c := range parent.Children {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out, nil
}

// Subtree returns the subtree rooted at id. maxDepth < 0 means unbounded;
// maxDepth 0 returns the node alone with its children elided.
func (t *Tree) Subtree(id string, maxDepth int) (*Node, error) {
	n, ok := t.nodeMap[id]
	if !ok {
		return nil, fmt.Errorf("node %q not found", id)
	}
	if maxDepth < 0 {
		return n, nil
	}
	var limit func(*Node, int) *Node
	limit = func(n *Node, depth int) *Node {
		if depth == 0 {
			return n.shallowCopy(nil)
		}
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = limit(c, depth-1)
		}
		return n.shallowCopy(children)
	}
	return limit(n, maxDepth), nil
}

// Depth returns the tree's maximum depth (root counts as depth 0).
func (t *Tree) Depth() (int, error) {
	if t.root == nil {
		return 0, ErrNotInitialized
	}
	var depth func(*Node) int
	depth = func(n *Node) int {
		if len(n.Children) == 0 {
			return 0
		}
		max := 0
		for _, c := range n.Children {
			if d := depth(c); d > max {
				max = d
			}
		}
		return 1 + max
	}
	return depth(t.root), nil
}

// Breadth returns the widest fan-out of any node in the tree.
func (t *Tree) Breadth() (int, error) {
	if t.root == nil {
		return 0, ErrNotInitialized
	}
	max := 0
	var walk func(*Node)
	walk = func(n *Node) {
		if len(n.Children) > max {
			max = len(n.Children)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.root)
	return max, nil
}

// AllBranches groups every node in the tree by BranchID.
func (t *Tree) AllBranches() map[string][]*Node {
	out := make(map[string][]*Node)
	if t.root == nil {
		return out
	}
	var walk func(*Node)
	walk = func(n *Node) {
		out[n.BranchID] = append(out[n.BranchID], n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.root)
	return out
}

func generateID(prefix string) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}
