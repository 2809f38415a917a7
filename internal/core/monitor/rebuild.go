package monitor

import (
	"fmt"
	"runtime/debug"

	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
)

// Display is the view the monitor rebuilds. Detach must fully release the
// previous view before it returns, Attach builds the new one and returns
// its item id to port mapping.
type Display interface {
	Detach() error
	Attach(snap models.Snapshot) (map[string]uint16, error)
}

// RebuildStatus tags the result of a supervised rebuild.
type RebuildStatus string

const (
	RebuildOK       RebuildStatus = "ok"
	RebuildFailed   RebuildStatus = "failed"
	RebuildPanicked RebuildStatus = "panicked"
)

// RebuildResult is the tagged outcome of one rebuild step.
type RebuildResult struct {
	Status RebuildStatus
	Err    error
}

// ItemID is the default view item id for a port.
func ItemID(port uint16) string {
	return fmt.Sprintf("port-%d", port)
}

// DefaultItems maps ItemID(port) to port for every record.
func DefaultItems(snap models.Snapshot) map[string]uint16 {
	items := make(map[string]uint16, snap.Len())
	for _, p := range snap.Ports() {
		items[ItemID(p)] = p
	}
	return items
}

// rebuild detaches the old view, waits the settle delay and attaches the new
// one. Attach is never called unless Detach succeeded.
func (m *Monitor) rebuild(snap models.Snapshot) (RebuildResult, map[string]uint16) {
	res := supervise(m.display.Detach)
	if res.Status != RebuildOK {
		return res, nil
	}

	m.sleep(m.options().SettleDelay)

	var items map[string]uint16
	res = supervise(func() error {
		var err error
		items, err = m.display.Attach(snap)
		return err
	})
	return res, items
}

// supervise runs fn and turns an error or a panic into a tagged result.
func supervise(fn func() error) (res RebuildResult) {
	defer func() {
		if r := recover(); r != nil {
			legacy.L.WithField("stack", string(debug.Stack())).Error("Recovered panic in view rebuild")
			res = RebuildResult{Status: RebuildPanicked, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return RebuildResult{Status: RebuildFailed, Err: err}
	}
	return RebuildResult{Status: RebuildOK}
}
