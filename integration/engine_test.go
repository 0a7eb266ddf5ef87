//go:build integration

package integration

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hostsync/hostsyncd/internal/config"
	"github.com/hostsync/hostsyncd/internal/deploy"
	"github.com/hostsync/hostsyncd/internal/gitrepo"
	"github.com/hostsync/hostsyncd/internal/testutil"
)

// recordingSupervisor stands in for systemctl; integration tests run against
// real git repositories but never against a real service manager.
type recordingSupervisor struct {
	restarted []string
}

func (s *recordingSupervisor) IsAvailable(_ context.Context) (bool, error) {
	return true, nil
}

func (s *recordingSupervisor) Restart(_ context.Context, unit string) error {
	s.restarted = append(s.restarted, unit)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestApply_PinsRealRepository(t *testing.T) {
	if err := gitrepo.EnsureInstalled(); err != nil {
		t.Skip("git not installed")
	}

	tmp := t.TempDir()
	repo := filepath.Join(tmp, "component")
	testutil.InitRepo(t, repo)
	first := testutil.Commit(t, repo, "main.cfg", "v1\n", "first")
	second := testutil.Commit(t, repo, "main.cfg", "v2\n", "second")

	if testutil.HeadRevision(t, repo) != second {
		t.Fatalf("fixture: expected head at second commit")
	}

	srcArtifact := filepath.Join(tmp, "app.cfg")
	destArtifact := filepath.Join(tmp, "etc", "app.cfg")
	if err := os.WriteFile(srcArtifact, []byte("color=red\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Components: []config.Component{
			{Name: "component", Path: repo, Pin: first},
		},
		Artifacts: []config.Artifact{
			{Source: srcArtifact, Dest: destArtifact},
		},
		Services: config.Services{Restart: []string{"app.service"}},
	}

	svc := &recordingSupervisor{}
	engine := deploy.NewEngine(cfg, gitrepo.NewShellClient(), svc, nil, nil, testLogger(), false, false)
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.HeadRevision(t, repo); got != first {
		t.Errorf("expected repository pinned to %s, head is %s", first, got)
	}
	if data, err := os.ReadFile(destArtifact); err != nil || string(data) != "color=red\n" {
		t.Errorf("unexpected artifact state: %q, %v", data, err)
	}
	if len(svc.restarted) != 1 {
		t.Errorf("expected dependent-service restart, got %v", svc.restarted)
	}

	// A second apply must not move anything.
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := testutil.HeadRevision(t, repo); got != first {
		t.Errorf("second apply moved the repository to %s", got)
	}
}

func TestApply_FailureRestoresRealRepository(t *testing.T) {
	if err := gitrepo.EnsureInstalled(); err != nil {
		t.Skip("git not installed")
	}

	tmp := t.TempDir()
	repo := filepath.Join(tmp, "component")
	testutil.InitRepo(t, repo)
	first := testutil.Commit(t, repo, "main.cfg", "v1\n", "first")
	second := testutil.Commit(t, repo, "main.cfg", "v2\n", "second")

	// The artifact deployment fails: its destination parent is a regular
	// file. The pin applied before it must be undone.
	blocker := filepath.Join(tmp, "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0644); err != nil {
		t.Fatal(err)
	}
	srcArtifact := filepath.Join(tmp, "app.cfg")
	if err := os.WriteFile(srcArtifact, []byte("never lands\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Components: []config.Component{
			{Name: "component", Path: repo, Pin: first},
		},
		Artifacts: []config.Artifact{
			{Source: srcArtifact, Dest: filepath.Join(blocker, "sub", "app.cfg")},
		},
	}

	engine := deploy.NewEngine(cfg, gitrepo.NewShellClient(), &recordingSupervisor{}, nil, nil, testLogger(), false, false)
	err := engine.Run(context.Background())
	if !errors.Is(err, deploy.ErrRolledBack) {
		t.Fatalf("expected ErrRolledBack, got %v", err)
	}

	if got := testutil.HeadRevision(t, repo); got != second {
		t.Errorf("expected repository restored to %s, head is %s", second, got)
	}
}
