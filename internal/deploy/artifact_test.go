package deploy

import (
	"os"
	"path/filepath"
	"testing"
)

func artifactEngine() *Engine {
	return &Engine{logger: testLogger()}
}

func TestDeployArtifact_IdenticalContentIsNoop(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.cfg")
	dest := filepath.Join(tmp, "dest.cfg")
	writeFile(t, src, "same\n")
	writeFile(t, dest, "same\n")

	rctx := NewRunContext(ModeApply)
	result, err := artifactEngine().deployArtifact(rctx, src, dest)
	if err != nil {
		t.Fatal(err)
	}
	if result != deployUnchanged {
		t.Errorf("expected deployUnchanged, got %v", result)
	}
	if rctx.Changed {
		t.Error("identical content must not mark the run changed")
	}
	if rctx.ledger.Len() != 0 {
		t.Error("identical content must not write a ledger entry")
	}
	if backups := backupsFor(t, dest); len(backups) != 0 {
		t.Errorf("identical content must never be backed up, got %v", backups)
	}
}

func TestDeployArtifact_AbsentDestinationIsCreated(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.cfg")
	dest := filepath.Join(tmp, "etc", "dest.cfg")
	writeFile(t, src, "fresh\n")

	rctx := NewRunContext(ModeApply)
	result, err := artifactEngine().deployArtifact(rctx, src, dest)
	if err != nil {
		t.Fatal(err)
	}
	if result != deployCreated {
		t.Errorf("expected deployCreated, got %v", result)
	}
	if got := readFile(t, dest); got != "fresh\n" {
		t.Errorf("unexpected content %q", got)
	}
	if !rctx.Changed {
		t.Error("a created artifact must mark the run changed")
	}
	// Nothing to restore: no backup, no ledger entry.
	if rctx.ledger.Len() != 0 {
		t.Error("a created artifact must not write a ledger entry")
	}
}

func TestDeployArtifact_DifferingDestinationIsBackedUp(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.cfg")
	dest := filepath.Join(tmp, "dest.cfg")
	writeFile(t, src, "new\n")
	writeFile(t, dest, "old\n")

	rctx := NewRunContext(ModeApply)
	result, err := artifactEngine().deployArtifact(rctx, src, dest)
	if err != nil {
		t.Fatal(err)
	}
	if result != deployReplaced {
		t.Errorf("expected deployReplaced, got %v", result)
	}
	if got := readFile(t, dest); got != "new\n" {
		t.Errorf("unexpected content %q", got)
	}

	backups := backupsFor(t, dest)
	if len(backups) != 1 {
		t.Fatalf("expected exactly one backup, got %v", backups)
	}
	if got := readFile(t, backups[0]); got != "old\n" {
		t.Errorf("backup must hold the prior content, got %q", got)
	}

	entries := rctx.ledger.Drain()
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	if entries[0].Kind != EntryBackup || entries[0].BackupPath != backups[0] || entries[0].DestPath != dest {
		t.Errorf("unexpected ledger entry: %+v", entries[0])
	}
}

func TestDeployArtifact_DryRun(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.cfg")
	destExisting := filepath.Join(tmp, "dest.cfg")
	destAbsent := filepath.Join(tmp, "absent.cfg")
	writeFile(t, src, "new\n")
	writeFile(t, destExisting, "old\n")

	rctx := NewRunContext(ModeDryRun)
	engine := artifactEngine()

	result, err := engine.deployArtifact(rctx, src, destExisting)
	if err != nil {
		t.Fatal(err)
	}
	if result != deployWouldReplace {
		t.Errorf("expected deployWouldReplace, got %v", result)
	}

	result, err = engine.deployArtifact(rctx, src, destAbsent)
	if err != nil {
		t.Fatal(err)
	}
	if result != deployWouldCreate {
		t.Errorf("expected deployWouldCreate, got %v", result)
	}

	if got := readFile(t, destExisting); got != "old\n" {
		t.Errorf("dry-run mutated the destination: %q", got)
	}
	if _, err := os.Stat(destAbsent); !os.IsNotExist(err) {
		t.Error("dry-run created an artifact")
	}
	if backups := backupsFor(t, destExisting); len(backups) != 0 {
		t.Errorf("dry-run created backups: %v", backups)
	}
	if !rctx.Changed {
		t.Error("dry-run must still mark the run changed when content differs")
	}
	if rctx.ledger.Len() != 0 {
		t.Error("dry-run must not write ledger entries")
	}
}
