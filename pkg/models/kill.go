package models

import (
	"fmt"
	"time"
)

// KillState names the steps a single kill attempt moves through.
type KillState string

const (
	StateRunning      KillState = "Running"
	StateSignalSent   KillState = "SignalSent"
	StateSignalFailed KillState = "SignalFailed"
	StateWaitingGrace KillState = "WaitingGrace"
	StateStillAlive   KillState = "StillAlive"
	StateGone         KillState = "Gone"
	StateEscalated    KillState = "Escalated"
	StateTerminated   KillState = "Terminated"
	StateUnknown      KillState = "Unknown"
)

// KillStage records which signal finished the process.
type KillStage string

const (
	StageGraceful KillStage = "graceful"
	StageForced   KillStage = "forced"
	StageUnknown  KillStage = "unknown"
)

// KillOutcome is the observed result of one kill attempt.
type KillOutcome struct {
	PID       int           `json:"pid"`
	Stage     KillStage     `json:"stage"`
	Final     KillState     `json:"final"`
	Escalated bool          `json:"escalated"`
	Trace     []KillState   `json:"trace"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Terminated reports whether the process was observed gone or force-signalled.
func (o KillOutcome) Terminated() bool {
	return o.Final == StateTerminated
}

func (o KillOutcome) String() string {
	return fmt.Sprintf("pid=%d final=%s stage=%s escalated=%t", o.PID, o.Final, o.Stage, o.Escalated)
}

// BulkKillResult aggregates the outcomes of a kill over many processes.
type BulkKillResult struct {
	Count    int           `json:"count"`
	Outcomes []KillOutcome `json:"outcomes"`
}

// Terminated counts outcomes that ended Terminated.
func (b BulkKillResult) Terminated() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Terminated() {
			n++
		}
	}
	return n
}
