package scanner

import (
	"context"

	"github.com/bearslyricattack/CompliK/portkill/internal/container"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessEnricher reads process details through gopsutil and, optionally,
// resolves the owning container.
type ProcessEnricher struct {
	Verbose     bool
	Performance bool
	Containers  *container.Resolver
}

// NewProcessEnricher builds an enricher from the enrich section, or returns
// nil when nothing is enabled.
func NewProcessEnricher(cfg models.EnrichConfig) *ProcessEnricher {
	if !cfg.Enabled() {
		return nil
	}
	e := &ProcessEnricher{Verbose: cfg.Verbose, Performance: cfg.Performance}
	if cfg.Containers {
		e.Containers = container.NewResolver(cfg.RuntimeEndpoint)
	}
	return e
}

func (e *ProcessEnricher) Enrich(ctx context.Context, in *models.RecordInput) {
	if e == nil {
		return
	}
	if e.Containers != nil {
		if id := e.Containers.ContainerID(in.PID); id != "" {
			in.ContainerID = id
			in.ContainerName = e.Containers.DisplayName(ctx, id)
		}
	}
	if !e.Verbose && !e.Performance {
		return
	}

	p, err := process.NewProcessWithContext(ctx, int32(in.PID))
	if err != nil {
		return
	}
	if e.Verbose {
		if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
			in.CommandLine = cmdline
		}
		if cwd, err := p.CwdWithContext(ctx); err == nil {
			in.WorkingDirectory = cwd
		}
	}
	if e.Performance {
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			in.CPUPercent = &cpu
		}
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			rss := mem.RSS
			in.MemoryBytes = &rss
		}
		if pct, err := p.MemoryPercentWithContext(ctx); err == nil {
			v := float64(pct)
			in.MemoryPercent = &v
		}
	}
}

// Close releases the container runtime connection.
func (e *ProcessEnricher) Close() error {
	if e == nil || e.Containers == nil {
		return nil
	}
	return e.Containers.Close()
}
