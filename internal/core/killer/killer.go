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

// Package killer terminates processes with a graceful signal, escalating to
// a forced one when the process outlives the grace period.
package killer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/internal/core/filter"
	"github.com/bearslyricattack/CompliK/portkill/internal/platform"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/metrics"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/sirupsen/logrus"
)

// Signaller is the part of the platform the killer needs.
type Signaller interface {
	Signal(pid int, strength platform.Strength) error
	IsAlive(pid int) bool
}

// PortScanner resolves ports to their current owners for bulk kills.
type PortScanner interface {
	Scan(ctx context.Context, ports []uint16) models.Snapshot
}

// Killer runs kill attempts. It holds no per-attempt state and is safe for
// concurrent use, the one-at-a-time rule is enforced by the monitor.
type Killer struct {
	signaller Signaller
	scanner   PortScanner
	grace     atomic.Int64
	sleep     func(time.Duration)
	metrics   *metrics.Collector
}

// NewKiller creates a killer. A zero grace period uses the default.
func NewKiller(s Signaller, scanner PortScanner, cfg models.KillConfig, collector *metrics.Collector) *Killer {
	k := &Killer{
		signaller: s,
		scanner:   scanner,
		sleep:     time.Sleep,
		metrics:   collector,
	}
	k.SetGracePeriod(cfg.GracePeriod)
	return k
}

// SetGracePeriod changes the wait before escalation for kills started
// afterwards. A zero value uses the default.
func (k *Killer) SetGracePeriod(grace time.Duration) {
	if grace <= 0 {
		grace = models.DefaultGracePeriod
	}
	k.grace.Store(int64(grace))
}

// WithSleep replaces the grace period wait, used by tests.
func (k *Killer) WithSleep(sleep func(time.Duration)) *Killer {
	k.sleep = sleep
	return k
}

// GracePeriod returns the configured grace period.
func (k *Killer) GracePeriod() time.Duration {
	return time.Duration(k.grace.Load())
}

// KillSingle terminates pid and reports what was observed. It always
// returns within the grace period plus one forced signal.
func (k *Killer) KillSingle(pid int) models.KillOutcome {
	start := time.Now()
	out := models.KillOutcome{PID: pid, Trace: []models.KillState{models.StateRunning}}
	log := legacy.L.WithField("pid", pid)

	finish := func(final models.KillState, stage models.KillStage) models.KillOutcome {
		out.Final = final
		out.Stage = stage
		out.Trace = append(out.Trace, final)
		out.Duration = time.Since(start)
		k.metrics.RecordKill(string(stage), out.Duration)
		log.WithFields(logrus.Fields{
			"final":     final,
			"stage":     stage,
			"escalated": out.Escalated,
		}).Info("Kill attempt finished")
		return out
	}

	if pid <= 0 {
		out.Errors = append(out.Errors, fmt.Sprintf("invalid pid %d", pid))
		return finish(models.StateUnknown, models.StageUnknown)
	}

	if err := k.signaller.Signal(pid, platform.Graceful); err != nil {
		// the process may already be gone, liveness is checked either way
		log.WithError(err).Warn("Graceful signal not delivered")
		out.Errors = append(out.Errors, fmt.Sprintf("graceful: %v", err))
		out.Trace = append(out.Trace, models.StateSignalFailed)
	} else {
		out.Trace = append(out.Trace, models.StateSignalSent)
	}

	out.Trace = append(out.Trace, models.StateWaitingGrace)
	k.sleep(k.GracePeriod())

	if !k.signaller.IsAlive(pid) {
		out.Trace = append(out.Trace, models.StateGone)
		return finish(models.StateTerminated, models.StageGraceful)
	}

	out.Trace = append(out.Trace, models.StateStillAlive)
	if err := k.signaller.Signal(pid, platform.Forced); err != nil {
		log.WithError(err).Warn("Forced signal not delivered")
		out.Errors = append(out.Errors, fmt.Sprintf("forced: %v", err))
		return finish(models.StateUnknown, models.StageUnknown)
	}
	out.Escalated = true
	out.Trace = append(out.Trace, models.StateEscalated)
	return finish(models.StateTerminated, models.StageForced)
}

// KillBulk kills every distinct process found on ports after applying
// rules. Kills run one after another and a failure never stops the batch.
func (k *Killer) KillBulk(ctx context.Context, ports []uint16, rules *filter.RuleSet) models.BulkKillResult {
	snap := filter.Apply(rules, k.scanner.Scan(ctx, ports))
	return k.KillPIDs(snap.PIDs())
}

// KillPIDs kills the given pids sequentially.
func (k *Killer) KillPIDs(pids []int) models.BulkKillResult {
	result := models.BulkKillResult{Count: len(pids), Outcomes: make([]models.KillOutcome, 0, len(pids))}
	for _, pid := range pids {
		result.Outcomes = append(result.Outcomes, k.KillSingle(pid))
	}
	legacy.L.WithFields(logrus.Fields{
		"count":      result.Count,
		"terminated": result.Terminated(),
	}).Info("Bulk kill finished")
	return result
}
