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

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/internal/core/filter"
	"github.com/bearslyricattack/CompliK/portkill/pkg/constants"
	"github.com/bearslyricattack/CompliK/portkill/pkg/eventbus"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMonitor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Monitor Suite")
}

var _ = BeforeSuite(func() {
	legacy.Silence()
})

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	events *eventLog
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.events.add(fmt.Sprintf("sleep %s", d))
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeScanner struct {
	mu   sync.Mutex
	snap models.Snapshot
}

func (f *fakeScanner) Scan(context.Context, []uint16) models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeScanner) set(records ...models.ProcessRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = models.NewSnapshot(records)
}

type fakeLiveness struct {
	mu   sync.Mutex
	dead map[int]bool
}

func (f *fakeLiveness) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead[pid]
}

// blockingKiller holds each kill until release is closed and tracks the
// highest number of kills running at once.
type blockingKiller struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
	mu      sync.Mutex
	pids    []int
	bulk    [][]uint16
}

func newBlockingKiller() *blockingKiller {
	return &blockingKiller{release: make(chan struct{})}
}

func (k *blockingKiller) enter() {
	n := k.active.Add(1)
	for {
		p := k.peak.Load()
		if n <= p || k.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-k.release
	k.active.Add(-1)
}

func (k *blockingKiller) KillSingle(pid int) models.KillOutcome {
	k.mu.Lock()
	k.pids = append(k.pids, pid)
	k.mu.Unlock()
	k.enter()
	return models.KillOutcome{PID: pid, Final: models.StateTerminated, Stage: models.StageGraceful}
}

func (k *blockingKiller) KillBulk(_ context.Context, ports []uint16, _ *filter.RuleSet) models.BulkKillResult {
	k.mu.Lock()
	k.bulk = append(k.bulk, ports)
	k.mu.Unlock()
	k.enter()
	return models.BulkKillResult{Count: 0}
}

func (k *blockingKiller) killed() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]int(nil), k.pids...)
}

type fakeDisplay struct {
	events      *eventLog
	detachErr   error
	attachPanic bool
	attached    []models.Snapshot
}

func (d *fakeDisplay) Detach() error {
	d.events.add("detach")
	return d.detachErr
}

func (d *fakeDisplay) Attach(snap models.Snapshot) (map[string]uint16, error) {
	d.events.add("attach")
	if d.attachPanic {
		panic("toolkit exploded")
	}
	d.attached = append(d.attached, snap)
	items := map[string]uint16{}
	for _, p := range snap.Ports() {
		items[fmt.Sprintf("menu-%d", p)] = p
	}
	return items, nil
}

func rec(pid int, port uint16, name string) models.ProcessRecord {
	return models.NewProcessRecord(models.RecordInput{PID: pid, Port: port, Name: name, Command: name})
}

var _ = Describe("Monitor", func() {
	var (
		events   *eventLog
		clock    *fakeClock
		scanner  *fakeScanner
		liveness *fakeLiveness
		killer   *blockingKiller
		m        *Monitor
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		events = &eventLog{}
		clock = &fakeClock{now: time.Unix(1_700_000_000, 0), events: events}
		scanner = &fakeScanner{}
		liveness = &fakeLiveness{dead: map[int]bool{}}
		killer = newBlockingKiller()
		m = NewMonitor(scanner, killer, liveness, []uint16{3000, 8080}, nil, Options{}).
			WithClock(clock.Now, clock.Sleep)
	})

	AfterEach(func() {
		select {
		case <-killer.release:
		default:
			close(killer.release)
		}
		m.Wait()
	})

	Describe("publishing", func() {
		It("should always publish on the first tick", func() {
			Expect(m.tick(ctx, true)).To(BeTrue())
			u := m.Poll(0)
			Expect(u.Version).To(Equal(uint64(1)))
			Expect(u.Rebuild).To(BeTrue())
			Expect(u.Snapshot.Len()).To(Equal(0))
			Expect(m.Poll(1).Rebuild).To(BeFalse())
		})

		It("should not republish when the count is unchanged", func() {
			scanner.set(rec(1, 3000, "node"))
			m.tick(ctx, true)
			clock.Advance(time.Minute)
			scanner.set(rec(2, 3000, "node"))
			Expect(m.tick(ctx, false)).To(BeFalse())
			Expect(m.Current().PIDs()).To(Equal([]int{2}))
			Expect(m.Poll(0).Version).To(Equal(uint64(1)))
		})

		It("should hold a changed count until the minimum interval passed", func() {
			m.tick(ctx, true)
			scanner.set(rec(1, 3000, "node"))

			clock.Advance(5 * time.Second)
			Expect(m.tick(ctx, false)).To(BeFalse())

			clock.Advance(5 * time.Second)
			Expect(m.tick(ctx, false)).To(BeTrue())
			Expect(m.Poll(1).Snapshot.Ports()).To(Equal([]uint16{3000}))
		})

		It("should hold refreshes inside the interaction cooldown", func() {
			m.tick(ctx, true)
			scanner.set(rec(1, 3000, "node"))
			clock.Advance(20 * time.Second)
			m.MarkInteraction()

			clock.Advance(time.Second)
			Expect(m.tick(ctx, false)).To(BeFalse())
			clock.Advance(time.Second)
			Expect(m.tick(ctx, false)).To(BeTrue())
		})

		It("should hold refreshes while a kill is in flight", func() {
			scanner.set(rec(1, 3000, "node"))
			m.tick(ctx, true)
			Expect(m.RequestKillPID(1)).To(Succeed())

			scanner.set()
			clock.Advance(time.Minute)
			Expect(m.tick(ctx, false)).To(BeFalse())

			close(killer.release)
			m.Wait()
			Expect(m.tick(ctx, false)).To(BeTrue())
			Expect(m.Poll(0).Snapshot.Len()).To(Equal(0))
		})

		It("should drop dead processes before publishing", func() {
			scanner.set(rec(1, 3000, "node"), rec(2, 8080, "java"))
			liveness.dead[2] = true

			m.tick(ctx, true)
			published := m.Poll(0).Snapshot
			Expect(published.Ports()).To(Equal([]uint16{3000}))
			Expect(published.Len()).To(BeNumerically("<=", m.Current().Len()))
		})

		It("should publish an empty view when every process died", func() {
			scanner.set(rec(1, 3000, "node"))
			liveness.dead[1] = true
			Expect(m.tick(ctx, true)).To(BeTrue())
			Expect(m.Poll(0).Snapshot.Len()).To(Equal(0))
		})

		It("should apply the filter rules", func() {
			m.UpdateRules(filter.MustNew(filter.RuleSpec{IgnorePatterns: []string{"node*"}}))
			scanner.set(rec(1, 3000, "nodemon"), rec(2, 8080, "go"))
			m.tick(ctx, true)
			Expect(m.Poll(0).Snapshot.Ports()).To(Equal([]uint16{8080}))
		})

		It("should announce publishes on the event bus", func() {
			ch := m.Subscribe(constants.SnapshotTopic)
			scanner.set(rec(1, 3000, "node"))
			m.tick(ctx, true)
			var ev eventbus.Event
			Eventually(ch).Should(Receive(&ev))
			update, ok := ev.Payload.(Update)
			Expect(ok).To(BeTrue())
			Expect(update.Version).To(Equal(uint64(1)))
			Expect(update.Snapshot.Ports()).To(Equal([]uint16{3000}))
		})
	})

	Describe("display rebuild", func() {
		var display *fakeDisplay

		BeforeEach(func() {
			display = &fakeDisplay{events: events}
			m.WithDisplay(display)
		})

		It("should detach, settle and then attach", func() {
			scanner.set(rec(1, 3000, "node"))
			m.tick(ctx, true)
			Expect(events.list()).To(Equal([]string{"detach", "sleep 50ms", "attach"}))
			Expect(m.Poll(0).Items).To(HaveKeyWithValue("menu-3000", uint16(3000)))
		})

		It("should keep the previous view when attach panics", func() {
			scanner.set(rec(1, 3000, "node"))
			m.tick(ctx, true)

			display.attachPanic = true
			scanner.set(rec(1, 3000, "node"), rec(2, 8080, "java"))
			clock.Advance(time.Minute)
			Expect(m.tick(ctx, false)).To(BeFalse())

			u := m.Poll(0)
			Expect(u.Version).To(Equal(uint64(1)))
			Expect(u.Snapshot.Len()).To(Equal(1))
			Expect(u.Items).To(HaveLen(1))
		})

		It("should never attach after a failed detach", func() {
			display.detachErr = errors.New("still referenced")
			scanner.set(rec(1, 3000, "node"))
			Expect(m.tick(ctx, true)).To(BeFalse())
			Expect(events.list()).To(Equal([]string{"detach"}))
		})
	})

	Describe("supervise", func() {
		It("should tag errors and panics", func() {
			Expect(supervise(func() error { return nil }).Status).To(Equal(RebuildOK))
			Expect(supervise(func() error { return errors.New("boom") }).Status).To(Equal(RebuildFailed))
			res := supervise(func() error { panic("boom") })
			Expect(res.Status).To(Equal(RebuildPanicked))
			Expect(res.Err).To(MatchError(ContainSubstring("boom")))
		})
	})

	Describe("kill requests", func() {
		It("should drop a second request while one is running", func() {
			Expect(m.RequestKillPID(10)).To(Succeed())
			Expect(m.KillInFlight()).To(BeTrue())
			Expect(m.RequestKillPID(11)).To(MatchError(ErrKillInFlight))
			Expect(m.RequestKillAll()).To(MatchError(ErrKillInFlight))

			close(killer.release)
			m.Wait()
			Expect(m.KillInFlight()).To(BeFalse())
			Expect(killer.killed()).To(Equal([]int{10}))
			Expect(killer.peak.Load()).To(Equal(int32(1)))
			Expect(events.list()).To(ContainElement("sleep 1s"))
		})

		It("should never run two kills at once under concurrent requests", func() {
			var wg sync.WaitGroup
			var accepted atomic.Int32
			for i := 1; i <= 20; i++ {
				wg.Add(1)
				go func(pid int) {
					defer wg.Done()
					if m.RequestKillPID(pid) == nil {
						accepted.Add(1)
					}
				}(i)
			}
			wg.Wait()
			Expect(accepted.Load()).To(Equal(int32(1)))
			close(killer.release)
			m.Wait()
			Expect(killer.peak.Load()).To(Equal(int32(1)))
		})

		It("should resolve view items against the latest scan", func() {
			scanner.set(rec(1, 3000, "node"))
			m.tick(ctx, true)
			scanner.set(rec(7, 3000, "node"))
			m.tick(ctx, false)

			Expect(m.RequestKill(ItemID(3000))).To(Succeed())
			close(killer.release)
			m.Wait()
			Expect(killer.killed()).To(Equal([]int{7}))
		})

		It("should reject unknown items and invalid pids", func() {
			m.tick(ctx, true)
			Expect(m.RequestKill("port-1")).To(MatchError(ErrUnknownItem))
			Expect(m.RequestKillPID(0)).To(MatchError(ErrInvalidPID))
			Expect(m.KillInFlight()).To(BeFalse())
		})

		It("should kill all on the watched ports and report on the kill topic", func() {
			ch := m.Subscribe(constants.KillTopic)
			Expect(m.RequestKillAll()).To(Succeed())
			close(killer.release)
			m.Wait()
			Expect(killer.bulk).To(Equal([][]uint16{{3000, 8080}}))

			var ev eventbus.Event
			Eventually(ch).Should(Receive(&ev))
			Expect(ev.Payload).To(BeAssignableToTypeOf(KillEvent{}))
			Expect(ev.Payload.(KillEvent).Kind).To(Equal("bulk"))
		})

		It("should count a request as an interaction", func() {
			m.tick(ctx, true)
			scanner.set(rec(1, 3000, "node"))
			clock.Advance(time.Minute)
			_ = m.RequestKill("missing")
			Expect(m.holdReasons(clock.Now().Add(-time.Hour))).To(ContainElement("interaction"))
		})
	})

	Describe("Run", func() {
		It("should publish immediately and stop on cancel", func() {
			m = NewMonitor(scanner, killer, liveness, []uint16{3000}, nil, Options{ScanInterval: 10 * time.Millisecond})
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- m.Run(runCtx) }()

			Eventually(func() uint64 { return m.Poll(0).Version }).Should(Equal(uint64(1)))
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
