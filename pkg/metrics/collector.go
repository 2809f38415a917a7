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

// Package metrics exposes portkill scan, monitor and kill statistics in
// Prometheus format.
package metrics

import (
	"time"
)

// Collector records events into the package level metrics. The zero value
// is ready to use and a nil *Collector records nothing.
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) RecordScan(duration time.Duration) {
	if c == nil {
		return
	}
	ScanTotal.Inc()
	ScanDurationSeconds.Observe(duration.Seconds())
}

func (c *Collector) RecordScanFailure() {
	if c == nil {
		return
	}
	ScanFailuresTotal.Inc()
}

func (c *Collector) RecordEnumerateCall() {
	if c == nil {
		return
	}
	EnumerateCallsTotal.Inc()
}

func (c *Collector) SetVisibleProcesses(n int) {
	if c == nil {
		return
	}
	VisibleProcesses.Set(float64(n))
}

func (c *Collector) RecordValidationDrops(n int) {
	if c == nil || n <= 0 {
		return
	}
	ValidationDropsTotal.Add(float64(n))
}

func (c *Collector) RecordRebuild(status string) {
	if c == nil {
		return
	}
	RebuildsTotal.WithLabelValues(status).Inc()
}

func (c *Collector) RecordSkippedRefresh(reason string) {
	if c == nil {
		return
	}
	SkippedRefreshesTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordKill(stage string, duration time.Duration) {
	if c == nil {
		return
	}
	KillsTotal.WithLabelValues(stage).Inc()
	KillDurationSeconds.Observe(duration.Seconds())
}

func (c *Collector) RecordDroppedKillRequest() {
	if c == nil {
		return
	}
	DroppedKillRequestsTotal.Inc()
}

func (c *Collector) SetKillInFlight(inFlight bool) {
	if c == nil {
		return
	}
	if inFlight {
		KillInFlight.Set(1)
		return
	}
	KillInFlight.Set(0)
}

func (c *Collector) RecordConfigReload(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	ConfigReloadsTotal.WithLabelValues(result).Inc()
}
