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

// Package models holds the value types shared between the scanner, the
// filter, the kill controller and the monitor loop.
package models

import (
	"fmt"
	"strings"
)

// RecordInput carries the raw fields of a listening process as reported by
// the platform and, optionally, the enricher.
type RecordInput struct {
	PID              int
	Port             uint16
	Command          string
	Name             string
	CommandLine      string
	WorkingDirectory string
	ContainerID      string
	ContainerName    string
	CPUPercent       *float64
	MemoryBytes      *uint64
	MemoryPercent    *float64
}

// ProcessRecord identifies one OS process bound to one port. Group and
// Project are derived once by NewProcessRecord.
type ProcessRecord struct {
	PID              int      `json:"pid"`
	Port             uint16   `json:"port"`
	Command          string   `json:"command"`
	Name             string   `json:"name"`
	CommandLine      string   `json:"command_line,omitempty"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
	ContainerID      string   `json:"container_id,omitempty"`
	ContainerName    string   `json:"container_name,omitempty"`
	Group            string   `json:"group,omitempty"`
	Project          string   `json:"project,omitempty"`
	CPUPercent       *float64 `json:"cpu_percent,omitempty"`
	MemoryBytes      *uint64  `json:"memory_bytes,omitempty"`
	MemoryPercent    *float64 `json:"memory_percent,omitempty"`
}

// NewProcessRecord builds a record and computes its derived labels.
func NewProcessRecord(in RecordInput) ProcessRecord {
	name := in.Name
	if name == "" {
		name = in.Command
	}
	command := in.Command
	if command == "" {
		command = name
	}
	r := ProcessRecord{
		PID:              in.PID,
		Port:             in.Port,
		Command:          command,
		Name:             name,
		CommandLine:      in.CommandLine,
		WorkingDirectory: in.WorkingDirectory,
		ContainerID:      in.ContainerID,
		ContainerName:    in.ContainerName,
		CPUPercent:       in.CPUPercent,
		MemoryBytes:      in.MemoryBytes,
		MemoryPercent:    in.MemoryPercent,
	}
	r.Group = ClassifyGroup(r.Name, r.Command)
	r.Project = ProjectFromDir(r.WorkingDirectory)
	return r
}

// HasGroup reports whether a group label was derived.
func (r ProcessRecord) HasGroup() bool {
	return r.Group != ""
}

// InContainer reports whether the process was traced to a container.
func (r ProcessRecord) InContainer() bool {
	return r.ContainerID != ""
}

// ClassifyGroup labels a process by runtime or toolchain. The first rule that
// matches wins, an empty string means no group.
func ClassifyGroup(name, command string) string {
	n := strings.ToLower(name)
	c := strings.ToLower(command)

	switch {
	case strings.Contains(n, "node") || strings.Contains(c, "node"):
		return "Node.js"
	case strings.Contains(n, "python") || strings.Contains(c, "python"):
		return "Python"
	case strings.Contains(n, "java") || strings.Contains(c, "java"):
		return "Java"
	case n == "go" || n == "golang" || strings.HasPrefix(c, "go ") || strings.Contains(c, " go "):
		return "Go"
	case strings.Contains(n, "rust") || strings.Contains(c, "cargo"):
		return "Rust"
	case strings.Contains(n, "php") || strings.Contains(c, "php"):
		return "PHP"
	case strings.Contains(n, "ruby") || strings.Contains(c, "ruby"):
		return "Ruby"
	case strings.Contains(n, "docker") || strings.Contains(c, "docker"):
		return "Docker"
	case strings.Contains(n, "nginx") || strings.Contains(c, "apache"):
		return "Web Server"
	case strings.Contains(n, "postgres") || strings.Contains(n, "mysql") || strings.Contains(n, "redis"):
		return "Database"
	}
	return ""
}

var projectHints = []string{"project", "app", "service", "api", "frontend", "backend", "client", "server"}

// ProjectFromDir guesses a project label from a working directory. Both
// slash styles are accepted so Windows paths parse on any host.
func ProjectFromDir(dir string) string {
	parts := strings.FieldsFunc(dir, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return ""
	}
	if last := parts[len(parts)-1]; last != "~" && !strings.HasSuffix(last, ":") {
		return last
	}
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if part == "~" || part == "home" || part == "Users" {
			continue
		}
		for _, hint := range projectHints {
			if strings.Contains(part, hint) {
				return part
			}
		}
	}
	return ""
}

// DisplayName renders "name [project] (group) :port".
func (r ProcessRecord) DisplayName() string {
	parts := []string{r.Name}
	if r.Project != "" {
		parts = append(parts, "["+r.Project+"]")
	}
	if r.Group != "" {
		parts = append(parts, "("+r.Group+")")
	}
	parts = append(parts, fmt.Sprintf(":%d", r.Port))
	return strings.Join(parts, " ")
}

// ShortName drops any directory part and common binary extensions.
func (r ProcessRecord) ShortName() string {
	name := r.Name
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	for _, ext := range []string{".exe", ".dll", ".so"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}
