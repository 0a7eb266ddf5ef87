package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client provides the revision-control operations the deploy engine needs.
// Revisions are compared by exact string equality, never by prefix.
type Client interface {
	// IsRepo reports whether path is a git work tree
	IsRepo(path string) bool
	// FetchAll fetches remote updates for the repository at path
	FetchAll(ctx context.Context, path string) error
	// HeadRevision returns the current head commit hash, or "" when the
	// repository has no resolvable HEAD (e.g. an empty clone)
	HeadRevision(ctx context.Context, path string) (string, error)
	// ForceCheckout moves the work tree to the exact revision, discarding
	// local modifications to tracked files
	ForceCheckout(ctx context.Context, path, revision string) error
	// DiscardUntracked removes files and directories not tracked by git
	DiscardUntracked(ctx context.Context, path string) error
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct{}

// NewShellClient creates a new git client that uses the git command
func NewShellClient() *ShellClient {
	return &ShellClient{}
}

// EnsureInstalled verifies the git binary is reachable on PATH.
// Called once before a run; a missing binary is a fatal precondition error.
func EnsureInstalled() error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git binary not found: %w", err)
	}
	return nil
}

// IsRepo reports whether path contains a git work tree.
// A .git entry may be a directory (normal clone) or a file (linked worktree).
func (c *ShellClient) IsRepo(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// FetchAll fetches updates from all configured remotes
func (c *ShellClient) FetchAll(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "fetch", "--all", "--tags")
	if err := runCommand(cmd); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// HeadRevision returns the commit hash of HEAD. A repository without a
// resolvable HEAD yields an empty revision, not an error; the caller treats
// an empty revision as differing from any pin.
func (c *ShellClient) HeadRevision(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--verify", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// No commits yet, or HEAD unresolvable: indeterminate, not fatal
			return "", nil
		}
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ForceCheckout detaches the work tree at the exact revision, overwriting
// local modifications to tracked files
func (c *ShellClient) ForceCheckout(ctx context.Context, path, revision string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "checkout", "--force", "--detach", revision)
	if err := runCommand(cmd); err != nil {
		return fmt.Errorf("git checkout failed for revision %q: %w", revision, err)
	}
	return nil
}

// DiscardUntracked removes untracked files and directories so the work tree
// matches the checked-out revision exactly
func (c *ShellClient) DiscardUntracked(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "clean", "-fd")
	if err := runCommand(cmd); err != nil {
		return fmt.Errorf("git clean failed: %w", err)
	}
	return nil
}

// runCommand executes a command and returns an error with stderr on failure
func runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
