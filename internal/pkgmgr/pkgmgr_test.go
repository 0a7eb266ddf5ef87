package pkgmgr

import "testing"

func TestNewAptManager(t *testing.T) {
	mgr := NewAptManager()
	if mgr == nil {
		t.Fatal("NewAptManager returned nil")
	}

	// Verify AptManager satisfies the interface.
	var _ Manager = mgr
}
