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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scanner metrics
	ScanTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portkill_scans_total",
		Help: "Total number of port scans performed",
	})

	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portkill_scan_duration_seconds",
		Help:    "Time taken to enumerate and parse listening ports",
		Buckets: prometheus.DefBuckets,
	})

	ScanFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portkill_scan_failures_total",
		Help: "Scans that returned no data because the enumeration tool failed",
	})

	EnumerateCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portkill_enumerate_calls_total",
		Help: "Invocations of the platform enumeration tool",
	})

	// Monitor metrics
	VisibleProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portkill_visible_processes",
		Help: "Processes in the last published snapshot",
	})

	ValidationDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portkill_validation_drops_total",
		Help: "Scanned processes found dead during pre-publish validation",
	})

	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portkill_rebuilds_total",
		Help: "View rebuilds by result status",
	}, []string{"status"})

	SkippedRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portkill_skipped_refreshes_total",
		Help: "Changed scans whose republish was held back, by reason",
	}, []string{"reason"})

	// Kill metrics
	KillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portkill_kills_total",
		Help: "Kill attempts by the stage that finished them",
	}, []string{"stage"})

	DroppedKillRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portkill_dropped_kill_requests_total",
		Help: "Kill requests refused because another kill was in flight",
	})

	KillInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portkill_kill_in_flight",
		Help: "1 while a kill worker is running",
	})

	KillDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portkill_kill_duration_seconds",
		Help:    "Time taken by a single kill attempt",
		Buckets: []float64{.01, .05, .1, .25, .5, .75, 1, 2, 5},
	})

	ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portkill_config_reloads_total",
		Help: "Configuration hot reloads by result",
	}, []string{"result"})
)
