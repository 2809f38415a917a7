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

// Package monitor runs the periodic scan loop, publishes debounced
// snapshots to a display and serializes kill requests.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/internal/core/filter"
	"github.com/bearslyricattack/CompliK/portkill/pkg/constants"
	"github.com/bearslyricattack/CompliK/portkill/pkg/eventbus"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/metrics"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrKillInFlight is returned when a kill request arrives while another
	// kill is still running. The request is dropped, not queued.
	ErrKillInFlight = errors.New("a kill is already in progress")
	// ErrUnknownItem is returned for a view item that is not in the current view.
	ErrUnknownItem = errors.New("unknown view item")
	// ErrInvalidPID is returned for non-positive pids.
	ErrInvalidPID = errors.New("invalid pid")
)

// Scanner resolves ports to processes.
type Scanner interface {
	Scan(ctx context.Context, ports []uint16) models.Snapshot
}

// Killer terminates processes.
type Killer interface {
	KillSingle(pid int) models.KillOutcome
	KillBulk(ctx context.Context, ports []uint16, rules *filter.RuleSet) models.BulkKillResult
}

// LivenessChecker reports whether a pid still exists.
type LivenessChecker interface {
	IsAlive(pid int) bool
}

// Options holds the loop timings. Delays are lower bounds.
type Options struct {
	ScanInterval        time.Duration
	MinRefreshInterval  time.Duration
	InteractionCooldown time.Duration
	SettleDelay         time.Duration
	ReleaseDelay        time.Duration
}

// OptionsFromConfig reads the timings from a defaulted configuration.
func OptionsFromConfig(cfg *models.Config) Options {
	return Options{
		ScanInterval:        cfg.Scanner.ScanInterval,
		MinRefreshInterval:  cfg.Monitor.MinRefreshInterval,
		InteractionCooldown: cfg.Monitor.InteractionCooldown,
		SettleDelay:         cfg.Monitor.SettleDelay,
		ReleaseDelay:        cfg.Monitor.ReleaseDelay,
	}
}

// Update is what a poller or subscriber receives. Rebuild is true when
// Version is newer than the version the caller last saw.
type Update struct {
	Snapshot models.Snapshot   `json:"snapshot"`
	Items    map[string]uint16 `json:"items"`
	Version  uint64            `json:"version"`
	Rebuild  bool              `json:"rebuild"`
}

// KillEvent is published on the kill topic when a kill worker finishes.
type KillEvent struct {
	Kind    string                 `json:"kind"`
	Outcome *models.KillOutcome    `json:"outcome,omitempty"`
	Bulk    *models.BulkKillResult `json:"bulk,omitempty"`
}

// viewState is the published snapshot and its item map, always swapped together.
type viewState struct {
	snapshot models.Snapshot
	items    map[string]uint16
	version  uint64
}

// Monitor owns the scheduler goroutine and the in-flight kill guard.
type Monitor struct {
	scanner  Scanner
	killer   Killer
	liveness LivenessChecker
	display  Display
	bus      *eventbus.EventBus
	metrics  *metrics.Collector

	now   func() time.Time
	sleep func(time.Duration)

	opts    atomic.Pointer[Options]
	ports   atomic.Pointer[[]uint16]
	rules   atomic.Pointer[filter.RuleSet]
	current atomic.Pointer[models.Snapshot]

	inFlight        atomic.Bool
	lastInteraction atomic.Int64

	mu          sync.RWMutex
	view        viewState
	lastPublish time.Time

	kills sync.WaitGroup
}

// NewMonitor creates a monitor. Zero option values take the defaults.
func NewMonitor(sc Scanner, k Killer, alive LivenessChecker, ports []uint16, rules *filter.RuleSet, opts Options) *Monitor {
	m := &Monitor{
		scanner:  sc,
		killer:   k,
		liveness: alive,
		bus:      eventbus.NewEventBus(16),
		now:      time.Now,
		sleep:    time.Sleep,
		view:     viewState{items: map[string]uint16{}},
	}
	m.setOptions(opts)
	m.UpdatePorts(ports)
	m.rules.Store(rules)
	empty := models.Snapshot{}
	m.current.Store(&empty)
	return m
}

// WithDisplay attaches the view that is rebuilt on every publish.
func (m *Monitor) WithDisplay(d Display) *Monitor {
	m.display = d
	return m
}

func (m *Monitor) WithMetrics(c *metrics.Collector) *Monitor {
	m.metrics = c
	return m
}

func (m *Monitor) WithEventBus(bus *eventbus.EventBus) *Monitor {
	m.bus = bus
	return m
}

// WithClock replaces the time source and the sleep used for delays.
func (m *Monitor) WithClock(now func() time.Time, sleep func(time.Duration)) *Monitor {
	m.now = now
	m.sleep = sleep
	return m
}

func (m *Monitor) setOptions(o Options) {
	if o.ScanInterval <= 0 {
		o.ScanInterval = models.DefaultScanInterval
	}
	if o.MinRefreshInterval <= 0 {
		o.MinRefreshInterval = models.DefaultMinRefreshInterval
	}
	if o.InteractionCooldown <= 0 {
		o.InteractionCooldown = models.DefaultInteractionCooldown
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = models.DefaultSettleDelay
	}
	if o.ReleaseDelay <= 0 {
		o.ReleaseDelay = models.DefaultReleaseDelay
	}
	m.opts.Store(&o)
}

func (m *Monitor) options() Options {
	return *m.opts.Load()
}

// Run publishes once, then ticks until ctx is cancelled. Kill workers still
// running at that point are left to finish, see Wait.
func (m *Monitor) Run(ctx context.Context) error {
	m.tick(ctx, true)

	interval := m.options().ScanInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	legacy.L.WithField("interval", interval.String()).Info("Monitor loop started")
	for {
		select {
		case <-ctx.Done():
			legacy.L.Info("Monitor loop stopped")
			return nil
		case <-ticker.C:
			m.tick(ctx, false)
			if next := m.options().ScanInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Wait blocks until every dispatched kill worker has released the guard.
func (m *Monitor) Wait() {
	m.kills.Wait()
}

// tick runs one scan and publishes when the debounce conditions hold, or
// unconditionally when force is set. It reports whether a publish happened.
func (m *Monitor) tick(ctx context.Context, force bool) bool {
	raw := m.scanner.Scan(ctx, *m.ports.Load())
	visible := filter.Apply(m.rules.Load(), raw)
	m.current.Store(&visible)

	m.mu.RLock()
	last := m.view.snapshot
	lastPublish := m.lastPublish
	m.mu.RUnlock()

	if !force {
		if visible.Len() == last.Len() {
			if !visible.SamePIDs(last) {
				legacy.L.WithField("count", visible.Len()).Debug("Process identities changed, count unchanged")
			}
			return false
		}
		if reasons := m.holdReasons(lastPublish); len(reasons) > 0 {
			for _, r := range reasons {
				m.metrics.RecordSkippedRefresh(r)
			}
			legacy.L.WithFields(logrus.Fields{
				"previous": last.Len(),
				"current":  visible.Len(),
				"reasons":  reasons,
			}).Info("Process count changed, refresh held back")
			return false
		}
	}

	return m.publish(m.validate(visible))
}

func (m *Monitor) holdReasons(lastPublish time.Time) []string {
	opts := m.options()
	now := m.now()
	var reasons []string
	if now.Sub(lastPublish) < opts.MinRefreshInterval {
		reasons = append(reasons, "min_interval")
	}
	if m.inFlight.Load() {
		reasons = append(reasons, "kill_in_flight")
	}
	if last := m.lastInteraction.Load(); last != 0 && now.Sub(time.Unix(0, last)) < opts.InteractionCooldown {
		reasons = append(reasons, "interaction")
	}
	return reasons
}

// validate drops records whose pid is no longer alive.
func (m *Monitor) validate(snap models.Snapshot) models.Snapshot {
	if m.liveness == nil {
		return snap
	}
	alive := make(map[int]bool)
	validated := snap.Filter(func(r models.ProcessRecord) bool {
		ok, seen := alive[r.PID]
		if !seen {
			ok = m.liveness.IsAlive(r.PID)
			alive[r.PID] = ok
		}
		return ok
	})
	if dropped := snap.Len() - validated.Len(); dropped > 0 {
		m.metrics.RecordValidationDrops(dropped)
		legacy.L.WithFields(logrus.Fields{
			"scanned":   snap.Len(),
			"validated": validated.Len(),
		}).Debug("Dropped processes that exited before publish")
	}
	return validated
}

// publish rebuilds the display and swaps the view state. A failed rebuild
// leaves the previous state in place so the next tick retries.
func (m *Monitor) publish(snap models.Snapshot) bool {
	items := DefaultItems(snap)
	if m.display != nil {
		res, attached := m.rebuild(snap)
		m.metrics.RecordRebuild(string(res.Status))
		if res.Status != RebuildOK {
			legacy.L.WithFields(logrus.Fields{
				"status": res.Status,
				"error":  fmt.Sprint(res.Err),
			}).Error("View rebuild failed, keeping previous view")
			return false
		}
		if attached != nil {
			items = attached
		}
	}

	m.mu.Lock()
	m.view = viewState{snapshot: snap, items: items, version: m.view.version + 1}
	m.lastPublish = m.now()
	update := Update{Snapshot: snap, Items: copyItems(items), Version: m.view.version, Rebuild: true}
	m.mu.Unlock()

	m.metrics.SetVisibleProcesses(snap.Len())
	m.bus.Publish(constants.SnapshotTopic, eventbus.Event{Payload: update})
	legacy.L.WithFields(logrus.Fields{
		"version":   update.Version,
		"processes": snap.Len(),
	}).Debug("Published snapshot")
	return true
}

// Poll returns the published state. Rebuild is set when it is newer than
// sinceVersion.
func (m *Monitor) Poll(sinceVersion uint64) Update {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Update{
		Snapshot: m.view.snapshot,
		Items:    copyItems(m.view.items),
		Version:  m.view.version,
		Rebuild:  m.view.version > sinceVersion,
	}
}

// Current returns the latest filtered scan, published or not.
func (m *Monitor) Current() models.Snapshot {
	return *m.current.Load()
}

// Subscribe returns a channel receiving Update values on the snapshot topic
// or KillEvent values on the kill topic.
func (m *Monitor) Subscribe(topic string) eventbus.EventChan {
	return m.bus.Subscribe(topic)
}

func (m *Monitor) Unsubscribe(topic string, ch eventbus.EventChan) {
	m.bus.Unsubscribe(topic, ch)
}

// MarkInteraction records that the user touched the view, holding back
// refreshes for the interaction cooldown.
func (m *Monitor) MarkInteraction() {
	m.lastInteraction.Store(m.now().UnixNano())
}

// KillInFlight reports whether a kill worker is running.
func (m *Monitor) KillInFlight() bool {
	return m.inFlight.Load()
}

// UpdateRules swaps the filter rules used from the next tick on.
func (m *Monitor) UpdateRules(rules *filter.RuleSet) {
	m.rules.Store(rules)
	legacy.L.WithField("rules", rules.Description()).Info("Filter rules updated")
}

// Rules returns the active filter rules.
func (m *Monitor) Rules() *filter.RuleSet {
	return m.rules.Load()
}

// UpdatePorts swaps the watched port set.
func (m *Monitor) UpdatePorts(ports []uint16) {
	p := append([]uint16(nil), ports...)
	m.ports.Store(&p)
}

// Ports returns the watched port set.
func (m *Monitor) Ports() []uint16 {
	return append([]uint16(nil), *m.ports.Load()...)
}

// UpdateOptions swaps the loop timings. A new scan interval applies after
// the next tick.
func (m *Monitor) UpdateOptions(opts Options) {
	m.setOptions(opts)
}

func copyItems(items map[string]uint16) map[string]uint16 {
	out := make(map[string]uint16, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out
}
