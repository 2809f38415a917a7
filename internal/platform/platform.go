// Copyright 2025 CompliK Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package platform enumerates listening sockets and signals processes. One
// implementation per target OS is selected at build time.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrToolUnavailable is returned when the enumeration tool cannot be started.
var ErrToolUnavailable = errors.New("enumeration tool unavailable")

// Listener is one raw (pid, port) pair as reported by the OS tool.
type Listener struct {
	PID     int
	Port    uint16
	Command string
	Name    string
}

// Strength selects the termination signal.
type Strength int

const (
	// Graceful asks the process to exit (SIGTERM, taskkill).
	Graceful Strength = iota
	// Forced ends the process unconditionally (SIGKILL, TerminateProcess).
	Forced
)

func (s Strength) String() string {
	if s == Forced {
		return "forced"
	}
	return "graceful"
}

// Platform is the OS capability used by the scanner and the kill controller.
type Platform interface {
	// Enumerate lists listening TCP sockets. A nil ports slice means all of
	// them. Implementations that cannot filter may return extra ports.
	Enumerate(ctx context.Context, ports []uint16) ([]Listener, error)
	// FiltersByPort reports whether Enumerate honours the ports argument.
	FiltersByPort() bool
	Signal(pid int, strength Strength) error
	IsAlive(pid int) bool
}

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. A non-zero exit is not an error:
// lsof exits 1 when nothing matches.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, name, err)
}

// StrictRunner runs commands with os/exec and reports a non-zero exit as an
// error, for tools whose exit status is the result.
func StrictRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
			return out, fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), stderr)
		}
		return out, fmt.Errorf("%s exited with code %d", name, exitErr.ExitCode())
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, name, err)
}
