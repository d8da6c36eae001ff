package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadRejectsNoParticipants(t *testing.T) {
	path := writeConfig(t, `
name: empty-team
termination:
  max_turns: 3
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty participants")
	}
}

func TestLoadRejectsDuplicateParticipant(t *testing.T) {
	path := writeConfig(t, `
name: dup-team
participants:
  - name: a
  - name: a
termination:
  max_turns: 3
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for duplicate participant name")
	}
}

func TestLoadRejectsMissingTermination(t *testing.T) {
	path := writeConfig(t, `
name: no-term-team
participants:
  - name: a
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing termination")
	}
}

func TestLoadResolvesInclude(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte(`
selector:
  allow_repeated_speaker: true
termination:
  max_turns: 5
`), 0o644); err != nil {
		t.Fatalf("writing base config: %v", err)
	}

	mainPath := filepath.Join(dir, "team.yaml")
	if err := os.WriteFile(mainPath, []byte(`
$include: base.yaml
name: included-team
participants:
  - name: a
  - name: b
`), 0o644); err != nil {
		t.Fatalf("writing main config: %v", err)
	}

	team, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if team.Name != "included-team" {
		t.Fatalf("expected name from main file, got %q", team.Name)
	}
	if !team.Selector.AllowRepeatedSpeaker {
		t.Fatalf("expected selector field merged in from included file")
	}
	if team.Termination.MaxTurns != 5 {
		t.Fatalf("expected termination field merged in from included file, got %d", team.Termination.MaxTurns)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(aPath, []byte("$include: b.yaml\nname: a\n"), 0o644); err != nil {
		t.Fatalf("writing a.yaml: %v", err)
	}
	if err := os.WriteFile(bPath, []byte("$include: a.yaml\nname: b\n"), 0o644); err != nil {
		t.Fatalf("writing b.yaml: %v", err)
	}

	if _, err := Load(aPath); err == nil {
		t.Fatalf("expected include cycle error")
	}
}

func TestParticipantNamesAndRoles(t *testing.T) {
	team := &Team{
		Participants: []ParticipantSpec{
			{Name: "researcher", Description: "finds facts"},
			{Name: "writer", Description: "drafts prose"},
		},
	}
	if got := team.ParticipantNames(); len(got) != 2 || got[0] != "researcher" || got[1] != "writer" {
		t.Fatalf("unexpected participant names: %v", got)
	}
	roles := team.ParticipantRoles()
	if roles["researcher"] != "finds facts" || roles["writer"] != "drafts prose" {
		t.Fatalf("unexpected participant roles: %v", roles)
	}
}
