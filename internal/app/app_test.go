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

package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/internal/display"
	"github.com/bearslyricattack/CompliK/portkill/internal/platform"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
)

func TestApp(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "App Suite")
}

var _ = BeforeSuite(func() {
	legacy.Silence()
})

// fakePlatform reports a fixed set of listeners, all of them alive.
type fakePlatform struct {
	mu        sync.Mutex
	listeners []platform.Listener
	calls     int
}

func (f *fakePlatform) Enumerate(_ context.Context, _ []uint16) ([]platform.Listener, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]platform.Listener(nil), f.listeners...), nil
}

func (f *fakePlatform) FiltersByPort() bool                 { return true }
func (f *fakePlatform) Signal(int, platform.Strength) error { return nil }
func (f *fakePlatform) IsAlive(int) bool                    { return true }

func newConfig() *models.Config {
	cfg := &models.Config{}
	cfg.Scanner.Ports = []int{3000, 8080}
	cfg.ApplyDefaults()
	return cfg
}

var _ = Describe("App", func() {
	var fake *fakePlatform

	BeforeEach(func() {
		fake = &fakePlatform{listeners: []platform.Listener{
			{PID: 111, Port: 3000, Command: "node", Name: "node"},
			{PID: 222, Port: 9999, Command: "x", Name: "x"},
		}}
	})

	It("should build the core from a configuration", func() {
		a, err := NewWithPlatform(newConfig(), fake)
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		Expect(a.Ports).To(Equal([]uint16{3000, 8080}))
		Expect(a.Rules.Active()).To(BeFalse())

		snap := a.Scanner.Scan(context.Background(), a.Ports)
		Expect(snap.Ports()).To(Equal([]uint16{3000}))
	})

	It("should reject an invalid port set", func() {
		cfg := newConfig()
		cfg.Scanner.PortRanges = []string{"9000-8000"}
		_, err := NewWithPlatform(cfg, fake)
		Expect(err).To(MatchError(ContainSubstring("invalid port set")))
	})

	It("should let --ports override the configured set", func() {
		a, err := NewWithPlatform(newConfig(), fake)
		Expect(err).NotTo(HaveOccurred())
		a.WithPorts([]uint16{9999})
		Expect(a.Ports).To(Equal([]uint16{9999}))
		a.WithPorts(nil)
		Expect(a.Ports).To(Equal([]uint16{9999}))
	})

	Describe("reloadHandler", func() {
		It("should swap ports and rules on the running monitor", func() {
			a, err := NewWithPlatform(newConfig(), fake)
			Expect(err).NotTo(HaveOccurred())
			mon := a.NewMonitor()
			console := display.NewConsole(gbytes.NewBuffer(), "")

			next := newConfig()
			next.Scanner.Ports = []int{4000}
			next.Filter.IgnorePatterns = []string{"node*"}
			a.reloadHandler(mon, console)(next)

			Expect(mon.Ports()).To(Equal([]uint16{4000}))
			Expect(mon.Rules().Description()).To(Equal("filtering: 1 patterns"))
		})

		It("should keep the previous state when the port set is invalid", func() {
			a, err := NewWithPlatform(newConfig(), fake)
			Expect(err).NotTo(HaveOccurred())
			mon := a.NewMonitor()

			next := newConfig()
			next.Scanner.Ports = []int{0}
			a.reloadHandler(mon, display.NewConsole(gbytes.NewBuffer(), ""))(next)

			Expect(mon.Ports()).To(Equal([]uint16{3000, 8080}))
		})

		It("should keep the --ports override across a reload", func() {
			a, err := NewWithPlatform(newConfig(), fake)
			Expect(err).NotTo(HaveOccurred())
			a.WithPorts([]uint16{3000, 8080})
			mon := a.NewMonitor()

			next := newConfig()
			next.Scanner.Ports = []int{1}
			next.Filter.IgnorePatterns = []string{"node*"}
			a.reloadHandler(mon, display.NewConsole(gbytes.NewBuffer(), ""))(next)

			Expect(mon.Ports()).To(Equal([]uint16{3000, 8080}))
			Expect(mon.Rules().Description()).To(Equal("filtering: 1 patterns"))
		})

		It("should keep the --log-level override across a reload", func() {
			prev := legacy.L.GetLevel()
			DeferCleanup(func() { legacy.L.SetLevel(prev) })

			a, err := NewWithPlatform(newConfig(), fake)
			Expect(err).NotTo(HaveOccurred())
			a.WithLogLevel("debug")
			mon := a.NewMonitor()

			next := newConfig()
			next.Scanner.LogLevel = "error"
			a.reloadHandler(mon, display.NewConsole(gbytes.NewBuffer(), ""))(next)

			Expect(legacy.L.GetLevel().String()).To(Equal("debug"))
		})

		It("should apply the reloaded grace period to the kill controller", func() {
			a, err := NewWithPlatform(newConfig(), fake)
			Expect(err).NotTo(HaveOccurred())
			mon := a.NewMonitor()
			Expect(a.Killer.GracePeriod()).To(Equal(models.DefaultGracePeriod))

			next := newConfig()
			next.Kill.GracePeriod = 3 * time.Second
			a.reloadHandler(mon, display.NewConsole(gbytes.NewBuffer(), ""))(next)

			Expect(a.Killer.GracePeriod()).To(Equal(3 * time.Second))
		})

		It("should list the sections that need a restart", func() {
			running := newConfig()
			next := newConfig()
			Expect(restartOnly(running, next)).To(BeEmpty())

			next.Scanner.Enrich.Verbose = true
			next.API.Enabled = true
			Expect(restartOnly(running, next)).To(Equal([]string{"scanner.enrich", "api"}))
		})
	})

	Describe("Watch", func() {
		It("should print the listing and stop when the user quits", func() {
			cfg := newConfig()
			cfg.Monitor.SettleDelay = time.Millisecond
			a, err := NewWithPlatform(cfg, fake)
			Expect(err).NotTo(HaveOccurred())

			out := gbytes.NewBuffer()
			done := make(chan error, 1)
			go func() {
				done <- a.Watch(context.Background(), WatchOptions{Out: out, In: strings.NewReader("q\n")})
			}()

			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
			Expect(out).To(gbytes.Say("1 process"))
		})

		It("should stop when the context is cancelled", func() {
			cfg := newConfig()
			cfg.Monitor.SettleDelay = time.Millisecond
			a, err := NewWithPlatform(cfg, fake)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- a.Watch(ctx, WatchOptions{Out: gbytes.NewBuffer()})
			}()

			Eventually(func() int {
				fake.mu.Lock()
				defer fake.mu.Unlock()
				return fake.calls
			}, 5*time.Second).Should(BeNumerically(">=", 1))
			cancel()
			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		})
	})
})
