package supervisor

import (
	"context"
	"fmt"
	"os/exec"
)

// Supervisor provides operations against the host's service manager
type Supervisor interface {
	// IsAvailable checks if systemctl is accessible
	IsAvailable(ctx context.Context) (bool, error)
	// Restart restarts a single service unit
	Restart(ctx context.Context, unit string) error
}

// Client implements Supervisor by shelling out to systemctl
type Client struct{}

// NewClient creates a new systemd client
func NewClient() *Client {
	return &Client{}
}

// IsAvailable checks if systemctl is accessible
func (c *Client) IsAvailable(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "status")
	err := cmd.Run()

	// systemctl status returns non-zero for degraded systems, but it's
	// still available; we only care if the command can run at all
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if exitErr.ExitCode() <= 3 {
				return true, nil
			}
		}
		return false, fmt.Errorf("systemctl not available: %w", err)
	}

	return true, nil
}

// Restart restarts the specified unit
func (c *Client) Restart(ctx context.Context, unit string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", unit)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl restart %s failed: %w: %s", unit, err, string(output))
	}
	return nil
}
