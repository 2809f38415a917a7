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

package models

import (
	"encoding/json"
	"sort"
)

// Snapshot is an immutable port to process mapping. The zero value is an
// empty snapshot.
type Snapshot struct {
	byPort map[uint16]ProcessRecord
}

// NewSnapshot indexes records by port. When two records share a port the
// first one observed is kept.
func NewSnapshot(records []ProcessRecord) Snapshot {
	byPort := make(map[uint16]ProcessRecord, len(records))
	for _, r := range records {
		if _, exists := byPort[r.Port]; exists {
			continue
		}
		byPort[r.Port] = r
	}
	return Snapshot{byPort: byPort}
}

// Get returns the record bound to port.
func (s Snapshot) Get(port uint16) (ProcessRecord, bool) {
	r, ok := s.byPort[port]
	return r, ok
}

// Len returns the number of ports in the snapshot.
func (s Snapshot) Len() int {
	return len(s.byPort)
}

// Ports returns the ports in ascending order.
func (s Snapshot) Ports() []uint16 {
	ports := make([]uint16, 0, len(s.byPort))
	for p := range s.byPort {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// Records returns the records ordered by port.
func (s Snapshot) Records() []ProcessRecord {
	ports := s.Ports()
	out := make([]ProcessRecord, 0, len(ports))
	for _, p := range ports {
		out = append(out, s.byPort[p])
	}
	return out
}

// PIDs returns the distinct pids in ascending order.
func (s Snapshot) PIDs() []int {
	seen := make(map[int]struct{}, len(s.byPort))
	pids := make([]int, 0, len(s.byPort))
	for _, r := range s.byPort {
		if _, ok := seen[r.PID]; ok {
			continue
		}
		seen[r.PID] = struct{}{}
		pids = append(pids, r.PID)
	}
	sort.Ints(pids)
	return pids
}

// Filter returns a new snapshot with the records for which keep is true.
func (s Snapshot) Filter(keep func(ProcessRecord) bool) Snapshot {
	byPort := make(map[uint16]ProcessRecord, len(s.byPort))
	for p, r := range s.byPort {
		if keep(r) {
			byPort[p] = r
		}
	}
	return Snapshot{byPort: byPort}
}

// SamePIDs reports whether both snapshots map every port to the same pid.
func (s Snapshot) SamePIDs(other Snapshot) bool {
	if len(s.byPort) != len(other.byPort) {
		return false
	}
	for p, r := range s.byPort {
		o, ok := other.byPort[p]
		if !ok || o.PID != r.PID {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the snapshot as a port-ordered list.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Records())
}

// UnmarshalJSON decodes a list of records.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var records []ProcessRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = NewSnapshot(records)
	return nil
}
