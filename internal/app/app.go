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

// Package app wires the scanner, filter, kill controller and monitor from a
// loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/internal/api"
	"github.com/bearslyricattack/CompliK/portkill/internal/config"
	"github.com/bearslyricattack/CompliK/portkill/internal/core/filter"
	"github.com/bearslyricattack/CompliK/portkill/internal/core/killer"
	"github.com/bearslyricattack/CompliK/portkill/internal/core/monitor"
	"github.com/bearslyricattack/CompliK/portkill/internal/core/scanner"
	"github.com/bearslyricattack/CompliK/portkill/internal/display"
	"github.com/bearslyricattack/CompliK/portkill/internal/platform"
	pkgconfig "github.com/bearslyricattack/CompliK/portkill/pkg/config"
	"github.com/bearslyricattack/CompliK/portkill/pkg/constants"
	"github.com/bearslyricattack/CompliK/portkill/pkg/eventbus"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/metrics"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/sirupsen/logrus"
)

// App holds the core components built from one configuration.
type App struct {
	Config   *models.Config
	Ports    []uint16
	Rules    *filter.RuleSet
	Platform platform.Platform
	Scanner  *scanner.Scanner
	Killer   *killer.Killer
	Metrics  *metrics.Collector

	enricher *scanner.ProcessEnricher

	// command line overrides, reapplied on every reload
	portsOverride    []uint16
	logLevelOverride string
}

// New builds the core on the platform of the running OS.
func New(cfg *models.Config) (*App, error) {
	return NewWithPlatform(cfg, platform.New())
}

// NewWithPlatform builds the core on p.
func NewWithPlatform(cfg *models.Config, p platform.Platform) (*App, error) {
	ports, err := pkgconfig.PortSet(cfg.Scanner)
	if err != nil {
		return nil, fmt.Errorf("invalid port set: %w", err)
	}
	rules, err := filter.New(filter.SpecFromConfig(cfg.Filter))
	if err != nil {
		return nil, fmt.Errorf("invalid filter rules: %w", err)
	}

	collector := metrics.NewCollector()
	sc := scanner.NewScanner(p, cfg.Scanner, collector)
	enricher := scanner.NewProcessEnricher(cfg.Scanner.Enrich)
	if enricher != nil {
		sc.WithEnricher(enricher)
	}

	return &App{
		Config:   cfg,
		Ports:    ports,
		Rules:    rules,
		Platform: p,
		Scanner:  sc,
		Killer:   killer.NewKiller(p, sc, cfg.Kill, collector),
		Metrics:  collector,
		enricher: enricher,
	}, nil
}

// WithPorts replaces the configured port set, used by the --ports flag.
// The override survives configuration reloads.
func (a *App) WithPorts(ports []uint16) *App {
	if len(ports) > 0 {
		a.Ports = ports
		a.portsOverride = append([]uint16(nil), ports...)
	}
	return a
}

// WithLogLevel pins the log level, used by the --log-level flag.
func (a *App) WithLogLevel(level string) *App {
	if level != "" {
		a.logLevelOverride = level
		legacy.SetLevel(level)
	}
	return a
}

// Close releases the enricher's runtime connection.
func (a *App) Close() error {
	return a.enricher.Close()
}

// NewMonitor creates the monitor loop over the app's components.
func (a *App) NewMonitor() *monitor.Monitor {
	return monitor.NewMonitor(a.Scanner, a.Killer, a.Platform, a.Ports, a.Rules, monitor.OptionsFromConfig(a.Config)).
		WithMetrics(a.Metrics)
}

// WatchOptions configures Watch.
type WatchOptions struct {
	// ConfigPath enables hot reload when set.
	ConfigPath string
	Loader     *config.Loader
	Out        io.Writer
	In         io.Reader
}

// Watch runs the monitor with a console display until ctx is cancelled or
// the user quits. The metrics and API servers start when enabled.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	console := display.NewConsole(opts.Out, a.Rules.Description())
	mon := a.NewMonitor().WithDisplay(console)

	if a.Config.Metrics.Enabled {
		srv := metrics.NewMetricsServerFromConfig(a.Config.Metrics)
		go func() {
			if err := srv.StartWithRetry(ctx, 3, 5*time.Second); err != nil && !errors.Is(err, context.Canceled) {
				legacy.L.WithError(err).Error("Metrics server unavailable")
			}
		}()
		defer shutdown(srv.Stop)
	}

	if a.Config.API.Enabled {
		srv := api.NewServer(mon, a.Config.API.Port)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer shutdown(srv.Stop)
	}

	if opts.Loader != nil && opts.ConfigPath != "" {
		watcher, err := config.NewWatcher(opts.Loader, a.reloadHandler(mon, console))
		if err != nil {
			legacy.L.WithError(err).Warn("Failed to create configuration watcher, hot-reload will be unavailable")
		} else if err := watcher.Start(ctx); err != nil {
			legacy.L.WithError(err).Warn("Failed to start configuration watcher, hot-reload will be unavailable")
		} else {
			defer watcher.Stop()
		}
	}

	kills := mon.Subscribe(constants.KillTopic)
	defer mon.Unsubscribe(constants.KillTopic, kills)
	go printKills(ctx, opts.Out, kills)

	if opts.In != nil {
		go func() {
			if err := display.ReadCommands(ctx, opts.In, opts.Out, mon); errors.Is(err, display.ErrQuit) {
				cancel()
			}
		}()
	}

	legacy.L.WithFields(logrus.Fields{
		"ports":  len(a.Ports),
		"filter": a.Rules.Description(),
	}).Info("Watching ports")
	err := mon.Run(ctx)
	mon.Wait()
	return err
}

// reloadHandler applies a reloaded configuration to the running monitor.
// The port set, rules and timings swap as a whole or not at all. Command
// line overrides win over the file.
func (a *App) reloadHandler(mon *monitor.Monitor, console *display.Console) config.UpdateHandler {
	return func(cfg *models.Config) {
		ports := a.portsOverride
		if len(ports) == 0 {
			var err error
			ports, err = pkgconfig.PortSet(cfg.Scanner)
			if err != nil {
				a.Metrics.RecordConfigReload(false)
				legacy.L.WithError(err).Error("Reloaded port set is invalid, keeping the previous configuration")
				return
			}
		}
		rules, err := filter.New(filter.SpecFromConfig(cfg.Filter))
		if err != nil {
			a.Metrics.RecordConfigReload(false)
			legacy.L.WithError(err).Error("Reloaded filter rules are invalid, keeping the previous configuration")
			return
		}

		level := cfg.Scanner.LogLevel
		if a.logLevelOverride != "" {
			level = a.logLevelOverride
		}
		legacy.SetLevel(level)

		a.Scanner.UpdateConfig(cfg.Scanner)
		a.Killer.SetGracePeriod(cfg.Kill.GracePeriod)
		mon.UpdatePorts(ports)
		mon.UpdateRules(rules)
		mon.UpdateOptions(monitor.OptionsFromConfig(cfg))
		console.SetHeader(rules.Description())
		a.Metrics.RecordConfigReload(true)

		fields := logrus.Fields{
			"ports":        len(ports),
			"filter":       rules.Description(),
			"grace_period": a.Killer.GracePeriod().String(),
		}
		if pending := restartOnly(a.Config, cfg); len(pending) > 0 {
			fields["restart_required"] = pending
			legacy.L.WithFields(fields).Warn("Configuration reloaded, some sections only apply after a restart")
			return
		}
		legacy.L.WithFields(fields).Info("Configuration reloaded")
	}
}

// restartOnly lists the changed sections that a running watch cannot apply.
func restartOnly(running, next *models.Config) []string {
	var changed []string
	if running.Scanner.Enrich != next.Scanner.Enrich {
		changed = append(changed, "scanner.enrich")
	}
	if running.Metrics != next.Metrics {
		changed = append(changed, "metrics")
	}
	if running.API != next.API {
		changed = append(changed, "api")
	}
	return changed
}

func printKills(ctx context.Context, out io.Writer, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			kill, ok := ev.Payload.(monitor.KillEvent)
			if !ok {
				continue
			}
			switch {
			case kill.Outcome != nil:
				fmt.Fprintln(out, display.FormatOutcome(*kill.Outcome))
			case kill.Bulk != nil:
				fmt.Fprint(out, display.FormatBulk(*kill.Bulk))
			}
		}
	}
}

func shutdown(stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		legacy.L.WithError(err).Warn("Shutdown did not complete cleanly")
	}
}
