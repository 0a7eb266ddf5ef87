package pkgmgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Manager upgrades the host's system packages. The upgrade sits entirely
// outside the transactional boundary of a run: it is never rolled back and
// a failure never triggers compensation of prior steps.
type Manager interface {
	UpgradeAll(ctx context.Context) error
}

// AptManager implements Manager by shelling out to apt-get
type AptManager struct{}

// NewAptManager creates a new apt-get backed manager
func NewAptManager() *AptManager {
	return &AptManager{}
}

// UpgradeAll refreshes the package index and upgrades all packages
func (m *AptManager) UpgradeAll(ctx context.Context) error {
	if err := m.run(ctx, "apt-get", "update"); err != nil {
		return fmt.Errorf("apt-get update failed: %w", err)
	}
	if err := m.run(ctx, "apt-get", "-y", "upgrade"); err != nil {
		return fmt.Errorf("apt-get upgrade failed: %w", err)
	}
	return nil
}

func (m *AptManager) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
