package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hostsync/hostsyncd/internal/config"
	"github.com/hostsync/hostsyncd/internal/gitrepo"
	"github.com/hostsync/hostsyncd/internal/kvstore"
	"github.com/hostsync/hostsyncd/internal/pkgmgr"
	"github.com/hostsync/hostsyncd/internal/supervisor"
)

// ErrRolledBack marks a run that failed and was compensated. Callers can
// distinguish it from a pre-mutation failure with errors.Is.
var ErrRolledBack = errors.New("run rolled back")

// Branding records pushed to the dependent key-value service after a run.
const (
	brandingNamespace = "ui"
	keyDisplayName    = "display_name"
	keyTheme          = "theme"
)

// Engine orchestrates a deployment run: it pins components, deploys
// artifacts, replaces bulk asset directories, and rolls everything
// reversible back if a mutating step fails.
type Engine struct {
	cfg          *config.Config
	git          gitrepo.Client
	svc          supervisor.Supervisor
	kv           kvstore.Client
	pkg          pkgmgr.Manager
	logger       *slog.Logger
	dryRun       bool
	allowUpgrade bool
}

// NewEngine creates a new deployment engine. kv and pkg may be nil when the
// key-value service or the system upgrade are not configured.
func NewEngine(cfg *config.Config, git gitrepo.Client, svc supervisor.Supervisor, kv kvstore.Client, pkg pkgmgr.Manager, logger *slog.Logger, dryRun, allowUpgrade bool) *Engine {
	return &Engine{
		cfg:          cfg,
		git:          git,
		svc:          svc,
		kv:           kv,
		pkg:          pkg,
		logger:       logger,
		dryRun:       dryRun,
		allowUpgrade: allowUpgrade,
	}
}

// Run executes one complete deployment run. It returns nil after a
// successful apply or dry-run, an error wrapping ErrRolledBack after a
// failed-and-compensated run, and a plain error for pre-mutation failures.
func (e *Engine) Run(ctx context.Context) error {
	mode := ModeApply
	if e.dryRun {
		mode = ModeDryRun
	}
	rctx := NewRunContext(mode)

	e.logger.Info("starting run",
		"mode", mode,
		"components", len(e.cfg.Components),
		"artifacts", len(e.cfg.Artifacts),
		"assets", len(e.cfg.Assets))

	// Preconditions are checked before anything is touched; a failure here
	// terminates without rollback.
	if err := e.validateInputs(); err != nil {
		return fmt.Errorf("precondition failed: %w", err)
	}

	if err := e.execute(ctx, rctx); err != nil {
		if rctx.mutated {
			e.logger.Error("run failed after mutations, rolling back", "error", err)
			e.rollback(ctx, rctx)
			return fmt.Errorf("%w: %w", ErrRolledBack, err)
		}
		e.logger.Error("run failed before any mutation", "error", err)
		return err
	}

	e.finalize(ctx, rctx)
	return nil
}

// validateInputs verifies that every required input exists before the first
// mutating step
func (e *Engine) validateInputs() error {
	for _, art := range e.cfg.Artifacts {
		if _, err := os.Stat(art.Source); err != nil {
			return fmt.Errorf("artifact source %s: %w", art.Source, err)
		}
	}
	return nil
}

// execute runs the mutating sequence: PinAll, DeployArtifacts,
// ReplaceBulkAssets. Steps run strictly one after another; the first error
// aborts the remainder.
func (e *Engine) execute(ctx context.Context, rctx *RunContext) error {
	for _, comp := range e.cfg.Components {
		if _, err := e.enforcePin(ctx, rctx, comp); err != nil {
			return fmt.Errorf("pin enforcement failed: %w", err)
		}
	}

	for _, art := range e.cfg.Artifacts {
		if err := e.deployConfigArtifact(rctx, art); err != nil {
			return fmt.Errorf("artifact deployment failed: %w", err)
		}
	}

	for _, asset := range e.cfg.Assets {
		if _, err := e.replaceAssets(rctx, asset); err != nil {
			return fmt.Errorf("asset replacement failed: %w", err)
		}
	}

	return nil
}

// deployConfigArtifact renders the artifact's template when substitution
// values are configured, then deploys the candidate content
func (e *Engine) deployConfigArtifact(rctx *RunContext, art config.Artifact) error {
	source := art.Source
	if len(art.Values) > 0 {
		rendered, err := renderTemplate(art.Source, art.Values)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", art.Source, err)
		}
		defer func() {
			_ = os.Remove(rendered)
		}()
		source = rendered
	}

	_, err := e.deployArtifact(rctx, source, art.Dest)
	return err
}

// finalize reports the run summary and carries out the post-run actions:
// dependent-service resync and, when allowed, the non-rollbackable system
// package upgrade.
func (e *Engine) finalize(ctx context.Context, rctx *RunContext) {
	switch {
	case rctx.Mode == ModeDryRun && rctx.Changed:
		e.logger.Info("check complete, changes pending", "changed", true)
	case rctx.Mode == ModeDryRun:
		e.logger.Info("check complete, host matches desired state", "changed", false)
	case rctx.Changed:
		e.logger.Info("run completed", "changed", true)
	default:
		e.logger.Info("run completed, no changes", "changed", false)
	}

	// Dry-run must not touch the host or its services.
	if rctx.Mode == ModeDryRun {
		return
	}

	e.resyncDependents(ctx)

	if e.allowUpgrade && e.pkg != nil {
		// Outside the transactional boundary: reported, never compensated.
		e.logger.Info("running system package upgrade")
		if err := e.pkg.UpgradeAll(ctx); err != nil {
			e.logger.Error("system package upgrade failed (not rolled back)", "error", err)
		}
	}
}

// resyncDependents restarts the configured dependent services and pushes
// the branding records to the key-value service. Every action is
// best-effort; failures are logged and never change the run's status.
// Called after both Completed and RolledBack.
func (e *Engine) resyncDependents(ctx context.Context) {
	if len(e.cfg.Services.Restart) > 0 {
		available, err := e.svc.IsAvailable(ctx)
		if err != nil || !available {
			e.logger.Warn("service manager unavailable, skipping dependent-service restarts",
				"error", err)
		} else {
			for _, unit := range e.cfg.Services.Restart {
				if err := e.svc.Restart(ctx, unit); err != nil {
					e.logger.Warn("failed to restart dependent service", "unit", unit, "error", err)
					continue
				}
				e.logger.Info("restarted dependent service", "unit", unit)
			}
		}
	}

	if e.kv == nil || !e.cfg.HasBranding() {
		return
	}

	if !e.kv.WaitReady(ctx) {
		e.logger.Warn("key-value service unreachable, skipping branding records")
		return
	}
	if e.cfg.KV.DisplayName != "" {
		if err := e.kv.PushItem(ctx, brandingNamespace, keyDisplayName, e.cfg.KV.DisplayName); err != nil {
			e.logger.Warn("failed to push display label", "error", err)
		}
	}
	if e.cfg.KV.Theme != "" {
		if err := e.kv.PushItem(ctx, brandingNamespace, keyTheme, e.cfg.KV.Theme); err != nil {
			e.logger.Warn("failed to push theme record", "error", err)
		}
	}
}
