package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Listener returns the first systemd-activated listener, detected via the
// LISTEN_PID and LISTEN_FDS environment variables. It returns nil when no
// socket activation is present or the activation targets another process;
// the caller then binds its own address. The webhook server needs exactly
// one socket, so any additional activated descriptors are closed.
func Listener() (net.Listener, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		// Activation is for a different process
		return nil, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if numFDs < 1 {
		return nil, nil
	}

	// Systemd passes descriptors starting at fd 3 (after stdio). Consume
	// the env vars so child processes don't inherit them.
	const firstFD = 3
	defer func() {
		_ = os.Unsetenv("LISTEN_PID")
		_ = os.Unsetenv("LISTEN_FDS")
		_ = os.Unsetenv("LISTEN_FDNAMES")
	}()

	file := os.NewFile(uintptr(firstFD), "systemd-socket-0")
	if file == nil {
		return nil, fmt.Errorf("failed to open activated fd %d", firstFD)
	}
	listener, err := net.FileListener(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to create listener from fd %d: %w", firstFD, err)
	}
	// The listener duplicated the descriptor; release ours.
	_ = file.Close()

	// Close extra activated descriptors we will not serve on.
	for i := 1; i < numFDs; i++ {
		if extra := os.NewFile(uintptr(firstFD+i), fmt.Sprintf("systemd-socket-%d", i)); extra != nil {
			_ = extra.Close()
		}
	}

	return listener, nil
}
