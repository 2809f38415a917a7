//go:build !windows

package platform

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// Unix enumerates with lsof and signals with kill(2).
type Unix struct {
	run Runner
}

// New returns the platform for the running OS.
func New() Platform {
	return NewUnix(ExecRunner)
}

// NewUnix builds the lsof platform around run.
func NewUnix(run Runner) *Unix {
	return &Unix{run: run}
}

func (u *Unix) Enumerate(ctx context.Context, ports []uint16) ([]Listener, error) {
	out, err := u.run(ctx, "lsof", LsofArgs(ports)...)
	if err != nil {
		return nil, err
	}
	return ParseLsof(string(out)), nil
}

func (u *Unix) FiltersByPort() bool { return true }

func (u *Unix) Signal(pid int, strength Strength) error {
	sig := unix.SIGTERM
	if strength == Forced {
		sig = unix.SIGKILL
	}
	return unix.Kill(pid, sig)
}

// IsAlive probes with signal 0. EPERM means the process exists but belongs
// to someone else.
func (u *Unix) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
