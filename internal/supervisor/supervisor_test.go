package supervisor

import (
	"context"
	"testing"
)

func TestNewClient(t *testing.T) {
	client := NewClient()
	if client == nil {
		t.Fatal("NewClient returned nil")
	}

	// Verify Client satisfies the interface.
	var _ Supervisor = client
}

func TestRestart_UnknownUnit(t *testing.T) {
	client := NewClient()

	available, err := client.IsAvailable(context.Background())
	if err != nil || !available {
		t.Skip("systemctl not available in this environment")
	}

	err = client.Restart(context.Background(), "hostsyncd-test-nonexistent.service")
	if err == nil {
		t.Error("expected error restarting a nonexistent unit")
	}
}
