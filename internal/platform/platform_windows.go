//go:build windows

package platform

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sys/windows"
)

const stillActive = 259

// Windows enumerates with netstat and tasklist and terminates through the
// process API.
type Windows struct {
	run Runner
	// signalRun delivers taskkill, its exit status is the delivery result.
	signalRun Runner
}

// New returns the platform for the running OS.
func New() Platform {
	return NewWindows(ExecRunner).WithSignalRunner(StrictRunner)
}

// NewWindows builds the netstat platform around run.
func NewWindows(run Runner) *Windows {
	return &Windows{run: run, signalRun: run}
}

// WithSignalRunner sets the runner used for graceful termination.
func (w *Windows) WithSignalRunner(run Runner) *Windows {
	w.signalRun = run
	return w
}

// Enumerate ignores ports, netstat cannot filter. The scanner post-filters.
func (w *Windows) Enumerate(ctx context.Context, _ []uint16) ([]Listener, error) {
	out, err := w.run(ctx, "netstat", "-ano", "-p", "TCP")
	if err != nil {
		return nil, err
	}
	rows := ParseNetstat(string(out))
	if len(rows) == 0 {
		return nil, nil
	}
	names := map[int]string{}
	if list, err := w.run(ctx, "tasklist", "/FO", "CSV", "/NH"); err == nil {
		names = ParseTasklist(string(list))
	}
	return JoinNames(rows, names), nil
}

func (w *Windows) FiltersByPort() bool { return false }

func (w *Windows) Signal(pid int, strength Strength) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid: %d", pid)
	}
	if strength == Graceful {
		_, err := w.signalRun(context.Background(), "taskkill", "/PID", strconv.Itoa(pid))
		return err
	}
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process: %w", err)
	}
	defer windows.CloseHandle(h)
	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("terminate process: %w", err)
	}
	return nil
}

func (w *Windows) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
