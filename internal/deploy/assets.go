package deploy

import (
	"fmt"
	"os"

	"github.com/hostsync/hostsyncd/internal/config"
)

// assetResult describes the outcome of replacing one bulk asset directory
type assetResult int

const (
	assetSkippedMissing assetResult = iota
	assetSkippedEmpty
	assetWouldReplace
	assetReplaced
)

// replaceAssets unconditionally replaces the destination directory's
// contents with the source directory's contents. Bulk asset directories are
// exempt from point-in-time restoration by policy: no backup is taken and no
// ledger entry is written, so a later rollback leaves the replacement in
// effect. A missing or empty source is an expected skip, not an error.
func (e *Engine) replaceAssets(rctx *RunContext, asset config.AssetDir) (assetResult, error) {
	entries, err := os.ReadDir(asset.Source)
	if err != nil {
		if os.IsNotExist(err) {
			e.logger.Info("asset source missing, skipping",
				"label", asset.Label, "source", asset.Source)
			return assetSkippedMissing, nil
		}
		return 0, fmt.Errorf("failed to read asset source %s: %w", asset.Source, err)
	}
	if len(entries) == 0 {
		e.logger.Info("asset source empty, skipping",
			"label", asset.Label, "source", asset.Source)
		return assetSkippedEmpty, nil
	}

	rctx.markChanged()

	if rctx.Mode == ModeDryRun {
		e.logger.Info("[dry-run] would replace asset directory",
			"label", asset.Label, "dest", asset.Dest, "entries", len(entries))
		return assetWouldReplace, nil
	}

	rctx.markMutated()

	if err := os.RemoveAll(asset.Dest); err != nil {
		return 0, fmt.Errorf("failed to remove asset directory %s: %w", asset.Dest, err)
	}
	if err := os.MkdirAll(asset.Dest, 0755); err != nil {
		return 0, fmt.Errorf("failed to recreate asset directory %s: %w", asset.Dest, err)
	}
	if err := copyDir(asset.Source, asset.Dest); err != nil {
		return 0, fmt.Errorf("failed to copy assets to %s: %w", asset.Dest, err)
	}

	e.logger.Info("replaced asset directory",
		"label", asset.Label, "dest", asset.Dest, "entries", len(entries))
	return assetReplaced, nil
}
