package deploy

import (
	"fmt"
	"time"
)

// deployResult describes the outcome of deploying one artifact
type deployResult int

const (
	deployUnchanged deployResult = iota
	deployWouldCreate
	deployWouldReplace
	deployCreated
	deployReplaced
)

// deployArtifact compares the candidate file against the destination and
// copies it into place when the content differs. A destination that exists
// with different content is backed up first and the backup is recorded in
// the ledger. A destination that did not exist gets no ledger entry: there
// is no prior state to restore, and the artifact is deliberately left in
// place after a rolled-back run.
func (e *Engine) deployArtifact(rctx *RunContext, source, dest string) (deployResult, error) {
	destExists := fileExists(dest)

	if destExists {
		same, err := filesEqual(source, dest)
		if err != nil {
			return 0, fmt.Errorf("failed to compare %s: %w", dest, err)
		}
		if same {
			e.logger.Debug("artifact unchanged", "dest", dest)
			return deployUnchanged, nil
		}
	}

	rctx.markChanged()

	if rctx.Mode == ModeDryRun {
		if destExists {
			e.logger.Info("[dry-run] would replace artifact", "dest", dest)
			return deployWouldReplace, nil
		}
		e.logger.Info("[dry-run] would create artifact", "dest", dest)
		return deployWouldCreate, nil
	}

	if destExists {
		backup := backupPathFor(dest, time.Now())
		if err := copyFile(dest, backup); err != nil {
			return 0, fmt.Errorf("failed to back up %s: %w", dest, err)
		}
		rctx.ledger.RecordBackup(backup, dest)
		e.logger.Info("backed up artifact", "dest", dest, "backup", backup)
	}

	rctx.markMutated()
	if err := copyFile(source, dest); err != nil {
		return 0, fmt.Errorf("failed to deploy %s: %w", dest, err)
	}

	if destExists {
		e.logger.Info("replaced artifact", "dest", dest)
		return deployReplaced, nil
	}
	e.logger.Info("created artifact", "dest", dest)
	return deployCreated, nil
}
