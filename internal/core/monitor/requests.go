package monitor

import (
	"context"
	"fmt"

	"github.com/bearslyricattack/CompliK/portkill/pkg/constants"
	"github.com/bearslyricattack/CompliK/portkill/pkg/eventbus"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/sirupsen/logrus"
)

// RequestKill kills the process behind a view item. The pid is taken from
// the latest scan, not from the possibly older published view.
func (m *Monitor) RequestKill(itemID string) error {
	m.MarkInteraction()

	m.mu.RLock()
	port, ok := m.view.items[itemID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	rec, ok := m.Current().Get(port)
	if !ok {
		return fmt.Errorf("%w: nothing is listening on port %d", ErrUnknownItem, port)
	}
	return m.dispatch("single", logrus.Fields{"item": itemID, "port": port, "pid": rec.PID}, func() KillEvent {
		out := m.killer.KillSingle(rec.PID)
		return KillEvent{Kind: "single", Outcome: &out}
	})
}

// RequestKillPID kills pid directly.
func (m *Monitor) RequestKillPID(pid int) error {
	m.MarkInteraction()
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	return m.dispatch("single", logrus.Fields{"pid": pid}, func() KillEvent {
		out := m.killer.KillSingle(pid)
		return KillEvent{Kind: "single", Outcome: &out}
	})
}

// RequestKillAll kills every visible process on the watched ports.
func (m *Monitor) RequestKillAll() error {
	m.MarkInteraction()
	ports, rules := m.Ports(), m.Rules()
	return m.dispatch("bulk", logrus.Fields{"ports": len(ports)}, func() KillEvent {
		result := m.killer.KillBulk(context.Background(), ports, rules)
		return KillEvent{Kind: "bulk", Bulk: &result}
	})
}

// dispatch starts kill on its own worker unless one is already running. The
// guard is released after the kill finishes and the release delay passed.
func (m *Monitor) dispatch(kind string, fields logrus.Fields, kill func() KillEvent) error {
	fields["kind"] = kind
	if !m.inFlight.CompareAndSwap(false, true) {
		m.metrics.RecordDroppedKillRequest()
		legacy.L.WithFields(fields).Warn("Kill request dropped, another kill is in progress")
		return ErrKillInFlight
	}
	m.metrics.SetKillInFlight(true)
	legacy.L.WithFields(fields).Info("Kill request accepted")

	m.kills.Add(1)
	go func() {
		defer m.kills.Done()
		defer func() {
			if r := recover(); r != nil {
				legacy.L.WithFields(fields).WithField("panic", fmt.Sprint(r)).Error("Kill worker panicked")
			}
			m.sleep(m.options().ReleaseDelay)
			m.inFlight.Store(false)
			m.metrics.SetKillInFlight(false)
		}()

		event := kill()
		m.bus.Publish(constants.KillTopic, eventbus.Event{Payload: event})
	}()
	return nil
}
