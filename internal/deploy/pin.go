package deploy

import (
	"context"
	"fmt"

	"github.com/hostsync/hostsyncd/internal/config"
)

// pinResult describes the outcome of enforcing one component pin
type pinResult int

const (
	pinSkippedNoPin pinResult = iota
	pinSkippedNotRepo
	pinAlreadyPinned
	pinWouldApply
	pinApplied
)

// enforcePin brings one component's work tree to its desired pinned
// revision. The prior revision is captured once, before any mutation on the
// component, and recorded in the ledger only when a mutation is about to
// happen. A failed forced reset is fatal for the run.
func (e *Engine) enforcePin(ctx context.Context, rctx *RunContext, comp config.Component) (pinResult, error) {
	if comp.Pin == "" {
		e.logger.Info("component has no pin, skipping", "component", comp.Name)
		return pinSkippedNoPin, nil
	}

	if !e.git.IsRepo(comp.Path) {
		e.logger.Info("component path is not a git work tree, skipping",
			"component", comp.Name, "path", comp.Path)
		return pinSkippedNotRepo, nil
	}

	prior, err := e.git.HeadRevision(ctx, comp.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read head revision of %s: %w", comp.Name, err)
	}

	// Fetch is best-effort: the local clone may already contain the pin,
	// so an unreachable remote must not fail the run.
	if err := e.git.FetchAll(ctx, comp.Path); err != nil {
		e.logger.Warn("fetch failed, continuing with local objects",
			"component", comp.Name, "error", err)
	}

	if prior == comp.Pin {
		e.logger.Info("component already pinned", "component", comp.Name, "revision", comp.Pin)
		return pinAlreadyPinned, nil
	}

	rctx.markChanged()

	if rctx.Mode == ModeDryRun {
		e.logger.Info("[dry-run] would pin component",
			"component", comp.Name, "from", prior, "to", comp.Pin)
		return pinWouldApply, nil
	}

	// Record the prior revision before touching the work tree so a failed
	// reset can still be compensated.
	if !rctx.ledger.HasRevision(comp.Path) {
		rctx.ledger.RecordRevision(comp.Name, comp.Path, prior)
	}
	rctx.markMutated()

	e.logger.Info("pinning component", "component", comp.Name, "from", prior, "to", comp.Pin)
	if err := e.git.ForceCheckout(ctx, comp.Path, comp.Pin); err != nil {
		return 0, fmt.Errorf("failed to pin %s to %s: %w", comp.Name, comp.Pin, err)
	}
	if err := e.git.DiscardUntracked(ctx, comp.Path); err != nil {
		return 0, fmt.Errorf("failed to discard untracked files in %s: %w", comp.Name, err)
	}

	current, err := e.git.HeadRevision(ctx, comp.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to re-read head revision of %s: %w", comp.Name, err)
	}
	e.logger.Info("component pinned", "component", comp.Name, "revision", current)

	return pinApplied, nil
}
