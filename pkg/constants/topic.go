package constants

// Event bus topics published by the monitor loop.
const (
	SnapshotTopic = "monitor.snapshot"
	KillTopic     = "monitor.kill"
)
