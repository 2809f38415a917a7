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

// Package scanner resolves a set of ports to the processes listening on them.
package scanner

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/internal/platform"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/metrics"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/sirupsen/logrus"
)

// Enricher fills optional process details before a record is built.
// Failures leave fields empty.
type Enricher interface {
	Enrich(ctx context.Context, in *models.RecordInput)
}

// Scanner turns platform enumeration output into snapshots.
type Scanner struct {
	platform platform.Platform
	enricher Enricher
	metrics  *metrics.Collector
	tunables atomic.Pointer[limits]
}

// limits are the enumeration tunables, swapped as a unit on reload.
type limits struct {
	chunkSize int
	threshold int
	timeout   time.Duration
}

// NewScanner creates a scanner. Zero values in cfg fall back to defaults.
func NewScanner(p platform.Platform, cfg models.ScannerConfig, collector *metrics.Collector) *Scanner {
	s := &Scanner{
		platform: p,
		metrics:  collector,
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig swaps the chunk size, large set threshold and enumerate
// timeout. Scans already running keep the previous values.
func (s *Scanner) UpdateConfig(cfg models.ScannerConfig) {
	l := &limits{
		chunkSize: cfg.ChunkSize,
		threshold: cfg.LargeSetThreshold,
		timeout:   cfg.EnumerateTimeout,
	}
	if l.chunkSize <= 0 {
		l.chunkSize = models.DefaultChunkSize
	}
	if l.threshold <= 0 {
		l.threshold = models.DefaultLargeSetThreshold
	}
	if l.timeout <= 0 {
		l.timeout = models.DefaultEnumerateTimeout
	}
	s.tunables.Store(l)
}

// WithEnricher sets the enricher applied to every record.
func (s *Scanner) WithEnricher(e Enricher) *Scanner {
	s.enricher = e
	return s
}

// Platform returns the underlying platform.
func (s *Scanner) Platform() platform.Platform {
	return s.platform
}

// Scan returns the listeners on ports. Every key of the result is one of
// the requested ports. An empty request returns an empty snapshot without
// running the tool, and a tool failure yields an empty snapshot too.
func (s *Scanner) Scan(ctx context.Context, ports []uint16) models.Snapshot {
	if len(ports) == 0 {
		return models.Snapshot{}
	}
	requested := make(map[uint16]struct{}, len(ports))
	for _, p := range ports {
		requested[p] = struct{}{}
	}

	start := time.Now()
	lim := s.tunables.Load()
	var (
		listeners []platform.Listener
		err       error
	)
	if len(requested) > lim.threshold || !s.platform.FiltersByPort() {
		listeners, err = s.enumerate(ctx, lim, nil)
	} else {
		listeners, err = s.enumerateChunks(ctx, lim, sortedKeys(requested))
	}
	if err != nil {
		s.fail(err, len(requested))
		return models.Snapshot{}
	}

	snap := s.build(ctx, listeners, requested)
	s.metrics.RecordScan(time.Since(start))
	legacy.L.WithFields(logrus.Fields{
		"requested": len(requested),
		"raw":       len(listeners),
		"found":     snap.Len(),
	}).Debug("Port scan complete")
	return snap
}

// ScanAll returns every listening TCP port.
func (s *Scanner) ScanAll(ctx context.Context) models.Snapshot {
	start := time.Now()
	listeners, err := s.enumerate(ctx, s.tunables.Load(), nil)
	if err != nil {
		s.fail(err, 0)
		return models.Snapshot{}
	}
	snap := s.build(ctx, listeners, nil)
	s.metrics.RecordScan(time.Since(start))
	return snap
}

func (s *Scanner) enumerateChunks(ctx context.Context, lim *limits, ports []uint16) ([]platform.Listener, error) {
	var all []platform.Listener
	for start := 0; start < len(ports); start += lim.chunkSize {
		end := start + lim.chunkSize
		if end > len(ports) {
			end = len(ports)
		}
		listeners, err := s.enumerate(ctx, lim, ports[start:end])
		if err != nil {
			return nil, err
		}
		all = append(all, listeners...)
	}
	return all, nil
}

func (s *Scanner) enumerate(ctx context.Context, lim *limits, ports []uint16) ([]platform.Listener, error) {
	ctx, cancel := context.WithTimeout(ctx, lim.timeout)
	defer cancel()
	s.metrics.RecordEnumerateCall()
	return s.platform.Enumerate(ctx, ports)
}

func (s *Scanner) fail(err error, requested int) {
	s.metrics.RecordScanFailure()
	fields := logrus.Fields{"error": err.Error(), "requested": requested}
	if errors.Is(err, platform.ErrToolUnavailable) {
		legacy.L.WithFields(fields).Warn("Port enumeration tool unavailable, returning no data this cycle")
		return
	}
	legacy.L.WithFields(fields).Warn("Port enumeration failed, returning no data this cycle")
}

// build keeps the first listener per requested port, enriches each distinct
// pid once and constructs the records. A nil requested set keeps all ports.
func (s *Scanner) build(ctx context.Context, listeners []platform.Listener, requested map[uint16]struct{}) models.Snapshot {
	seen := make(map[uint16]struct{}, len(listeners))
	enriched := make(map[int]models.RecordInput)
	records := make([]models.ProcessRecord, 0, len(listeners))

	for _, l := range listeners {
		if requested != nil {
			if _, ok := requested[l.Port]; !ok {
				continue
			}
		}
		if _, dup := seen[l.Port]; dup {
			continue
		}
		seen[l.Port] = struct{}{}

		in, ok := enriched[l.PID]
		if !ok {
			in = models.RecordInput{PID: l.PID, Command: l.Command, Name: l.Name}
			if s.enricher != nil {
				s.enricher.Enrich(ctx, &in)
			}
			enriched[l.PID] = in
		}
		in.Port = l.Port
		records = append(records, models.NewProcessRecord(in))
	}
	return models.NewSnapshot(records)
}

func sortedKeys(set map[uint16]struct{}) []uint16 {
	out := make([]uint16, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
