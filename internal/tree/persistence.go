package tree

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/haasonsaas/groupchat/internal/storage"
)

// document is the on-disk shape of a Tree: the same shape the original
// state manager writes, with node_type added (the original only persisted
// message/summary/parent/children/is_active/branch_id/timestamp and left
// node_type to be inferred, which this implementation does not do — tool
// node types round-trip explicitly instead) and the sparse snapshot map
// folded in alongside it so a single file captures a session's full
// resumable state.
type document struct {
	Root            *Node            `json:"root"`
	CurrentBranchID string           `json:"current_branch_id"`
	Snapshots       map[int]Snapshot `json:"snapshots,omitempty"`
}

// SaveToFile writes the tree (and, if snaps is non-nil, the state-context
// snapshot store) to path using an atomic write.
func (t *Tree) SaveToFile(path string, snaps *SnapshotStore) error {
	if t.root == nil {
		return fmt.Errorf("nothing to save: tree not initialized")
	}
	doc := document{Root: t.root, CurrentBranchID: t.currentBranchID}
	if snaps != nil {
		doc.Snapshots = snaps.Export()
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tree: %w", err)
	}
	return storage.AtomicWriteFile(path, data, 0o644)
}

// LoadFromFile replaces the tree's contents with what is stored at path,
// rebuilds the node map depth-first, and restores current_node by walking
// down the active branch the same way the manager does when it first
// builds the tree: at each level, prefer an active child on the current
// branch, otherwise fall back to the last active child.
func LoadFromFile(path string) (*Tree, *SnapshotStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("corrupted state file %s: %w", path, err)
	}
	if doc.Root == nil {
		return nil, nil, fmt.Errorf("corrupted state file %s: missing root", path)
	}

	t := &Tree{
		root:            doc.Root,
		currentBranchID: doc.CurrentBranchID,
		nodeMap:         make(map[string]*Node),
	}
	if t.currentBranchID == "" {
		t.currentBranchID = "main"
	}
	t.buildNodeMap(t.root)
	t.currentNode = t.findLastActiveNode()

	snaps := NewSnapshotStore()
	if doc.Snapshots != nil {
		snaps.Import(doc.Snapshots)
	}
	return t, snaps, nil
}

func (t *Tree) buildNodeMap(n *Node) {
	t.nodeMap[n.ID] = n
	for _, c := range n.Children {
		t.buildNodeMap(c)
	}
}

func (t *Tree) findLastActiveNode() *Node {
	node := t.root
	for {
		var active []*Node
		for _, c := range node.Children {
			if c.IsActive {
				active = append(active, c)
			}
		}
		if len(active) == 0 {
			return node
		}
		var onBranch *Node
		for _, c := range active {
			if c.BranchID == t.currentBranchID {
				onBranch = c
				break
			}
		}
		if onBranch != nil {
			node = onBranch
		} else {
			node = active[len(active)-1]
		}
	}
}
