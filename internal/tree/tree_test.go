package tree

import (
	"os"
	"path/filepath"
	"testing"
)

func buildLinearTree(t *testing.T) *Tree {
	t.Helper()
	tr := New()
	tr.InitializeRoot("alice", "hello", "")
	if _, err := tr.AddNode("bob", "hi alice", "", NodeTypeMessage); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if _, err := tr.AddNode("alice", "how are you", "", NodeTypeMessage); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if _, err := tr.AddNode("bob", "good thanks", "", NodeTypeMessage); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	return tr
}

func TestAddNodeSkipsManagerSource(t *testing.T) {
	tr := buildLinearTree(t)
	before := tr.CurrentNode()
	n, err := tr.AddNode(managerAgentName, "internal bookkeeping", "", NodeTypeMessage)
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if n != nil {
		t.Fatalf("expected nil node for manager source, got %+v", n)
	}
	if tr.CurrentNode() != before {
		t.Fatalf("current node should be unchanged after a manager-source add")
	}
}

func TestCreateBranchMarksOldPathInactive(t *testing.T) {
	tr := buildLinearTree(t)
	leaf := tr.CurrentNode()

	branched, err := tr.CreateBranch(2, "let's redo this")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if branched.AgentName != "You" {
		t.Fatalf("branch node should be attributed to the user, got %q", branched.AgentName)
	}
	if !branched.IsActive {
		t.Fatalf("new branch node should be active")
	}
	if leaf.IsActive {
		t.Fatalf("old leaf should be marked inactive after branching past it")
	}
	if tr.CurrentNode() != branched {
		t.Fatalf("current node should be the new branch node")
	}
}

func TestCreateBranchTrimExceedsDepth(t *testing.T) {
	tr := buildLinearTree(t)
	if _, err := tr.CreateBranch(100, "too far back"); err == nil {
		t.Fatalf("expected error when trim count exceeds available message nodes")
	}
}

func TestActivePathAfterBranch(t *testing.T) {
	tr := buildLinearTree(t)
	if _, err := tr.CreateBranch(1, "branch here"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	path, err := tr.ActivePath()
	if err != nil {
		t.Fatalf("ActivePath: %v", err)
	}
	if got, want := path[0].AgentName, "alice"; got != want {
		t.Fatalf("path should start at root, got %q want %q", got, want)
	}
	if got, want := path[len(path)-1].AgentName, "You"; got != want {
		t.Fatalf("path should end at the new branch node, got %q want %q", got, want)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tr := buildLinearTree(t)
	snaps := NewSnapshotStore()
	snaps.Put(1, Snapshot{StateOfRun: "in progress"})

	path := filepath.Join(t.TempDir(), "state.json")
	if err := tr.SaveToFile(path, snaps); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, loadedSnaps, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	wantPath, err := tr.ActivePath()
	if err != nil {
		t.Fatalf("ActivePath on original: %v", err)
	}
	gotPath, err := loaded.ActivePath()
	if err != nil {
		t.Fatalf("ActivePath on loaded: %v", err)
	}
	if len(gotPath) != len(wantPath) {
		t.Fatalf("loaded active path has %d nodes, want %d", len(gotPath), len(wantPath))
	}
	for i := range wantPath {
		if gotPath[i].ID != wantPath[i].ID {
			t.Fatalf("node %d: got id %q want %q", i, gotPath[i].ID, wantPath[i].ID)
		}
	}

	if snap, ok := loadedSnaps.Nearest(1); !ok || snap.StateOfRun != "in progress" {
		t.Fatalf("expected snapshot at index 1 to round-trip, got %+v ok=%v", snap, ok)
	}
}

func TestLoadFromFileMissingRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"current_branch_id":"main"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := LoadFromFile(path); err == nil {
		t.Fatalf("expected error loading a file with no root")
	}
}
