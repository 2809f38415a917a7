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

// Package filter decides which process records are hidden from the listing
// and from bulk kills.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
)

// RuleSpec is the uncompiled form of a rule set.
type RuleSpec struct {
	IgnorePorts     []uint16
	IgnoreProcesses []string
	IgnorePatterns  []string
	IgnoreGroups    []string
	// OnlyGroups, when non-empty, hides every record outside these groups.
	OnlyGroups []string
}

// SpecFromConfig converts the configuration section, dropping ports that do
// not fit in 16 bits.
func SpecFromConfig(cfg models.FilterConfig) RuleSpec {
	spec := RuleSpec{
		IgnoreProcesses: cfg.IgnoreProcesses,
		IgnorePatterns:  cfg.IgnorePatterns,
		IgnoreGroups:    cfg.IgnoreGroups,
		OnlyGroups:      cfg.OnlyGroups,
	}
	for _, p := range cfg.IgnorePorts {
		if p > 0 && p <= 65535 {
			spec.IgnorePorts = append(spec.IgnorePorts, uint16(p))
		}
	}
	return spec
}

// RuleSet is a compiled, read-only set of rules. Safe for concurrent use.
type RuleSet struct {
	ignorePorts     map[uint16]struct{}
	ignoreProcesses map[string]struct{}
	patterns        []*regexp.Regexp
	ignoreGroups    map[string]struct{}
	onlyGroups      map[string]struct{}
}

// Stats counts the entries of every rule list.
type Stats struct {
	IgnorePorts     int `json:"ignore_ports"`
	IgnoreProcesses int `json:"ignore_processes"`
	IgnorePatterns  int `json:"ignore_patterns"`
	IgnoreGroups    int `json:"ignore_groups"`
	OnlyGroups      int `json:"only_groups"`
}

// New compiles spec. A pattern that fails to compile is an error.
func New(spec RuleSpec) (*RuleSet, error) {
	rs := &RuleSet{
		ignorePorts:     make(map[uint16]struct{}, len(spec.IgnorePorts)),
		ignoreProcesses: toSet(spec.IgnoreProcesses),
		ignoreGroups:    toSet(spec.IgnoreGroups),
	}
	for _, p := range spec.IgnorePorts {
		rs.ignorePorts[p] = struct{}{}
	}
	if len(spec.OnlyGroups) > 0 {
		rs.onlyGroups = toSet(spec.OnlyGroups)
	}
	for _, pattern := range spec.IgnorePatterns {
		re, err := CompileGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		rs.patterns = append(rs.patterns, re)
	}
	return rs, nil
}

// MustNew is New for rule sets known to be valid.
func MustNew(spec RuleSpec) *RuleSet {
	rs, err := New(spec)
	if err != nil {
		panic(err)
	}
	return rs
}

// CompileGlob turns a glob into an anchored regular expression. '*' matches
// any run of characters, '?' exactly one, everything else is literal.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// ShouldIgnore reports whether r is hidden. Checks run in a fixed order and
// stop at the first match.
func (rs *RuleSet) ShouldIgnore(r models.ProcessRecord) bool {
	if rs == nil {
		return false
	}
	if _, ok := rs.ignorePorts[r.Port]; ok {
		return true
	}
	if _, ok := rs.ignoreProcesses[r.Name]; ok {
		return true
	}
	for _, re := range rs.patterns {
		if re.MatchString(r.Name) || re.MatchString(r.Command) {
			return true
		}
	}
	if r.HasGroup() {
		if _, ok := rs.ignoreGroups[r.Group]; ok {
			return true
		}
	}
	if rs.onlyGroups != nil {
		if !r.HasGroup() {
			return true
		}
		if _, ok := rs.onlyGroups[r.Group]; !ok {
			return true
		}
	}
	return false
}

// Apply returns the snapshot without the ignored records. Nil rules keep
// everything.
func Apply(rs *RuleSet, snap models.Snapshot) models.Snapshot {
	if !rs.Active() {
		return snap
	}
	return snap.Filter(func(r models.ProcessRecord) bool {
		return !rs.ShouldIgnore(r)
	})
}

// Stats returns the size of each rule list.
func (rs *RuleSet) Stats() Stats {
	if rs == nil {
		return Stats{}
	}
	return Stats{
		IgnorePorts:     len(rs.ignorePorts),
		IgnoreProcesses: len(rs.ignoreProcesses),
		IgnorePatterns:  len(rs.patterns),
		IgnoreGroups:    len(rs.ignoreGroups),
		OnlyGroups:      len(rs.onlyGroups),
	}
}

// Active reports whether any rule is configured.
func (rs *RuleSet) Active() bool {
	s := rs.Stats()
	return s.IgnorePorts+s.IgnoreProcesses+s.IgnorePatterns+s.IgnoreGroups+s.OnlyGroups > 0
}

// Description summarizes the rule set for logs and the console header.
func (rs *RuleSet) Description() string {
	s := rs.Stats()
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.IgnorePorts, "ports")
	add(s.IgnoreProcesses, "processes")
	add(s.IgnorePatterns, "patterns")
	add(s.IgnoreGroups, "groups")
	add(s.OnlyGroups, "only-groups")
	if len(parts) == 0 {
		return "no filters"
	}
	return "filtering: " + strings.Join(parts, ", ")
}
