package models

import "time"

// Config is the full portkill configuration file.
type Config struct {
	Scanner ScannerConfig `yaml:"scanner"`
	Filter  FilterConfig  `yaml:"filter"`
	Kill    KillConfig    `yaml:"kill"`
	Monitor MonitorConfig `yaml:"monitor"`
	Metrics MetricsConfig `yaml:"metrics"`
	API     APIConfig     `yaml:"api"`
}

// ScannerConfig controls which ports are watched and how they are enumerated.
type ScannerConfig struct {
	Ports             []int         `yaml:"ports"`
	PortRanges        []string      `yaml:"port_ranges"`
	LogLevel          string        `yaml:"log_level"`
	ScanInterval      time.Duration `yaml:"scan_interval"`
	EnumerateTimeout  time.Duration `yaml:"enumerate_timeout"`
	ChunkSize         int           `yaml:"chunk_size"`
	LargeSetThreshold int           `yaml:"large_set_threshold"`
	Enrich            EnrichConfig  `yaml:"enrich"`
}

// EnrichConfig toggles the optional per-process details.
type EnrichConfig struct {
	Verbose         bool   `yaml:"verbose"`
	Performance     bool   `yaml:"performance"`
	Containers      bool   `yaml:"containers"`
	RuntimeEndpoint string `yaml:"runtime_endpoint"`
}

// Enabled reports whether any enrichment was requested.
func (e EnrichConfig) Enabled() bool {
	return e.Verbose || e.Performance || e.Containers
}

// FilterConfig lists the ignore and allow rules.
type FilterConfig struct {
	IgnorePorts     []int    `yaml:"ignore_ports"`
	IgnoreProcesses []string `yaml:"ignore_processes"`
	IgnorePatterns  []string `yaml:"ignore_patterns"`
	IgnoreGroups    []string `yaml:"ignore_groups"`
	OnlyGroups      []string `yaml:"only_groups"`
}

// KillConfig tunes the escalation.
type KillConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
}

// MonitorConfig holds the refresh debounce and rebuild delays.
type MonitorConfig struct {
	MinRefreshInterval  time.Duration `yaml:"min_refresh_interval"`
	InteractionCooldown time.Duration `yaml:"interaction_cooldown"`
	SettleDelay         time.Duration `yaml:"settle_delay"`
	ReleaseDelay        time.Duration `yaml:"release_delay"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

const (
	DefaultScanInterval        = 5 * time.Second
	DefaultEnumerateTimeout    = 10 * time.Second
	DefaultChunkSize           = 100
	DefaultLargeSetThreshold   = 200
	DefaultGracePeriod         = 500 * time.Millisecond
	DefaultMinRefreshInterval  = 10 * time.Second
	DefaultInteractionCooldown = 2 * time.Second
	DefaultSettleDelay         = 50 * time.Millisecond
	DefaultReleaseDelay        = time.Second
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
	DefaultAPIPort             = 9091
	DefaultRuntimeEndpoint     = "unix:///run/containerd/containerd.sock"
	DefaultLogLevel            = "info"
)

// DefaultConfig returns a configuration with every default applied and no ports.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	s := &c.Scanner
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.ScanInterval == 0 {
		s.ScanInterval = DefaultScanInterval
	}
	if s.EnumerateTimeout == 0 {
		s.EnumerateTimeout = DefaultEnumerateTimeout
	}
	if s.ChunkSize == 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.LargeSetThreshold == 0 {
		s.LargeSetThreshold = DefaultLargeSetThreshold
	}
	if s.Enrich.RuntimeEndpoint == "" {
		s.Enrich.RuntimeEndpoint = DefaultRuntimeEndpoint
	}
	if c.Kill.GracePeriod == 0 {
		c.Kill.GracePeriod = DefaultGracePeriod
	}
	m := &c.Monitor
	if m.MinRefreshInterval == 0 {
		m.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if m.InteractionCooldown == 0 {
		m.InteractionCooldown = DefaultInteractionCooldown
	}
	if m.SettleDelay == 0 {
		m.SettleDelay = DefaultSettleDelay
	}
	if m.ReleaseDelay == 0 {
		m.ReleaseDelay = DefaultReleaseDelay
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultAPIPort
	}
}
