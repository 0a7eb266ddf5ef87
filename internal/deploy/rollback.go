package deploy

import (
	"context"
	"os"
)

// rollback walks the ledger in reverse append order and undoes every
// recorded action: backups are copied back over their destinations and
// pinned components are reset to their recorded prior revisions. The run is
// already failing, so every restoration is best-effort: failures are logged,
// never escalated, and rollback itself never returns an error. Re-entry is
// guarded; a run rolls back at most once.
func (e *Engine) rollback(ctx context.Context, rctx *RunContext) {
	if rctx.rolledBack {
		return
	}
	rctx.rolledBack = true

	entries := rctx.ledger.Drain()
	e.logger.Warn("rolling back", "actions", len(entries))

	restored := 0
	for _, entry := range entries {
		switch entry.Kind {
		case EntryBackup:
			if _, err := os.Stat(entry.BackupPath); err != nil {
				e.logger.Warn("backup no longer present, cannot restore",
					"backup", entry.BackupPath, "dest", entry.DestPath)
				continue
			}
			if err := copyFile(entry.BackupPath, entry.DestPath); err != nil {
				e.logger.Warn("failed to restore backup",
					"backup", entry.BackupPath, "dest", entry.DestPath, "error", err)
				continue
			}
			e.logger.Info("restored artifact from backup",
				"dest", entry.DestPath, "backup", entry.BackupPath)
			restored++

		case EntryRevision:
			if err := e.git.FetchAll(ctx, entry.Path); err != nil {
				e.logger.Warn("fetch failed during rollback, continuing with local objects",
					"component", entry.Component, "error", err)
			}
			if err := e.git.ForceCheckout(ctx, entry.Path, entry.PriorRevision); err != nil {
				e.logger.Warn("failed to reset component to prior revision",
					"component", entry.Component, "revision", entry.PriorRevision, "error", err)
				continue
			}
			if err := e.git.DiscardUntracked(ctx, entry.Path); err != nil {
				e.logger.Warn("failed to discard untracked files during rollback",
					"component", entry.Component, "error", err)
			}
			e.logger.Info("reset component to prior revision",
				"component", entry.Component, "revision", entry.PriorRevision)
			restored++
		}
	}

	e.logger.Warn("rollback finished", "restored", restored, "attempted", len(entries))

	// Dependent services may be running against half-old state; ask them to
	// resync even if some restorations failed.
	e.resyncDependents(ctx)
}
