package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// InitRepo initializes a git repository at dir with a test identity
// configured, so tests can commit without touching global git config.
func InitRepo(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"git", "init", "-b", "main", dir},
		{"git", "-C", dir, "config", "user.email", "test@test.com"},
		{"git", "-C", dir, "config", "user.name", "Test"},
	} {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			t.Fatalf("%v: %s", err, out)
		}
	}
}

// Commit writes a file into the repository and commits it, returning the
// resulting commit hash.
func Commit(t *testing.T, repoDir, name, content, msg string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(repoDir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"git", "-C", repoDir, "add", name},
		{"git", "-C", repoDir, "commit", "-m", msg},
	} {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			t.Fatalf("%v: %s", err, out)
		}
	}
	return HeadRevision(t, repoDir)
}

// HeadRevision returns the repository's current HEAD commit hash
func HeadRevision(t *testing.T, repoDir string) string {
	t.Helper()
	out, err := exec.Command("git", "-C", repoDir, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatalf("rev-parse failed: %v", err)
	}
	return strings.TrimSpace(string(out))
}

// Clone clones src into dst
func Clone(t *testing.T, src, dst string) {
	t.Helper()
	if out, err := exec.Command("git", "clone", src, dst).CombinedOutput(); err != nil {
		t.Fatalf("%v: %s", err, out)
	}
}
