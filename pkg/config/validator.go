package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
)

// ValidationResult holds the outcome of validating a configuration.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ConfigValidator checks configuration fields against registered rules.
type ConfigValidator struct {
	rules map[string][]ValidationRule
}

// ValidationRule validates a single field value.
type ValidationRule interface {
	Validate(value interface{}) *ValidationError
}

// ValidationError describes one failed rule.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s' failed validation: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewConfigValidator returns a validator with the default portkill rules.
func NewConfigValidator() *ConfigValidator {
	v := &ConfigValidator{rules: make(map[string][]ValidationRule)}
	v.registerDefaultRules()
	return v
}

func (v *ConfigValidator) registerDefaultRules() {
	v.AddRule("scanner.ports", &PortListRule{})
	v.AddRule("scanner.port_ranges", &SliceRule{ElementRule: &PortRangeRule{}})
	v.AddRule("scanner.log_level", &EnumRule{
		AllowedValues: []string{"trace", "debug", "info", "warn", "error", "fatal"},
		AllowEmpty:    true,
	})
	v.AddRule("scanner.scan_interval", &DurationRule{Min: 100 * time.Millisecond, Max: time.Hour})
	v.AddRule("scanner.enumerate_timeout", &DurationRule{Min: 100 * time.Millisecond, Max: 5 * time.Minute})
	v.AddRule("scanner.chunk_size", &NumberRule{Min: intPtr(0), Max: intPtr(1000)})
	v.AddRule("scanner.large_set_threshold", &NumberRule{Min: intPtr(0), Max: intPtr(65535)})
	v.AddRule("scanner.enrich.runtime_endpoint", &StringRule{MaxLength: 512})

	v.AddRule("filter.ignore_ports", &PortListRule{})
	v.AddRule("filter.ignore_processes", &SliceRule{ElementRule: &StringRule{Required: true, MaxLength: 256}})
	v.AddRule("filter.ignore_patterns", &SliceRule{ElementRule: &GlobRule{MaxLength: 256}})
	v.AddRule("filter.ignore_groups", &SliceRule{ElementRule: &StringRule{Required: true, MaxLength: 64}})
	v.AddRule("filter.only_groups", &SliceRule{ElementRule: &StringRule{Required: true, MaxLength: 64}})

	v.AddRule("kill.grace_period", &DurationRule{Min: 10 * time.Millisecond, Max: time.Minute})

	v.AddRule("monitor.min_refresh_interval", &DurationRule{Max: time.Hour})
	v.AddRule("monitor.interaction_cooldown", &DurationRule{Max: time.Minute})
	v.AddRule("monitor.settle_delay", &DurationRule{Max: 5 * time.Second})
	v.AddRule("monitor.release_delay", &DurationRule{Max: time.Minute})

	v.AddRule("metrics.port", &PortRule{AllowZero: true})
	v.AddRule("api.port", &PortRule{AllowZero: true})
}

// AddRule registers a rule for a dotted field name.
func (v *ConfigValidator) AddRule(field string, rule ValidationRule) {
	v.rules[field] = append(v.rules[field], rule)
}

// Validate checks every section of the configuration.
func (v *ConfigValidator) Validate(cfg *models.Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	s := cfg.Scanner
	v.check(result, "scanner.ports", s.Ports)
	v.check(result, "scanner.port_ranges", s.PortRanges)
	v.check(result, "scanner.log_level", s.LogLevel)
	v.check(result, "scanner.scan_interval", s.ScanInterval)
	v.check(result, "scanner.enumerate_timeout", s.EnumerateTimeout)
	v.check(result, "scanner.chunk_size", s.ChunkSize)
	v.check(result, "scanner.large_set_threshold", s.LargeSetThreshold)
	v.check(result, "scanner.enrich.runtime_endpoint", s.Enrich.RuntimeEndpoint)

	f := cfg.Filter
	v.check(result, "filter.ignore_ports", f.IgnorePorts)
	v.check(result, "filter.ignore_processes", f.IgnoreProcesses)
	v.check(result, "filter.ignore_patterns", f.IgnorePatterns)
	v.check(result, "filter.ignore_groups", f.IgnoreGroups)
	v.check(result, "filter.only_groups", f.OnlyGroups)

	v.check(result, "kill.grace_period", cfg.Kill.GracePeriod)

	m := cfg.Monitor
	v.check(result, "monitor.min_refresh_interval", m.MinRefreshInterval)
	v.check(result, "monitor.interaction_cooldown", m.InteractionCooldown)
	v.check(result, "monitor.settle_delay", m.SettleDelay)
	v.check(result, "monitor.release_delay", m.ReleaseDelay)

	v.check(result, "metrics.port", cfg.Metrics.Port)
	v.check(result, "api.port", cfg.API.Port)

	v.validateCrossFields(cfg, result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (v *ConfigValidator) check(result *ValidationResult, field string, value interface{}) {
	if err := v.validateField(field, value); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
}

func (v *ConfigValidator) validateCrossFields(cfg *models.Config, result *ValidationResult) {
	if len(cfg.Scanner.Ports) == 0 && len(cfg.Scanner.PortRanges) == 0 {
		result.Warnings = append(result.Warnings, "no ports configured, pass --ports or set scanner.ports")
	}
	if cfg.Metrics.Enabled && cfg.API.Enabled && cfg.Metrics.Port != 0 && cfg.Metrics.Port == cfg.API.Port {
		result.Errors = append(result.Errors, fmt.Sprintf("metrics.port and api.port are both %d", cfg.API.Port))
	}
	if cfg.Scanner.Enrich.Containers && !strings.Contains(cfg.Scanner.Enrich.RuntimeEndpoint, "://") &&
		cfg.Scanner.Enrich.RuntimeEndpoint != "" {
		result.Warnings = append(result.Warnings, "scanner.enrich.runtime_endpoint has no scheme, unix:// is assumed")
	}
	scan := orDefault(cfg.Scanner.ScanInterval, models.DefaultScanInterval)
	refresh := orDefault(cfg.Monitor.MinRefreshInterval, models.DefaultMinRefreshInterval)
	if refresh <= scan {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"monitor.min_refresh_interval %s is not above scanner.scan_interval %s, every count change will rebuild the listing",
			refresh, scan))
	}
	only := make(map[string]bool, len(cfg.Filter.OnlyGroups))
	for _, g := range cfg.Filter.OnlyGroups {
		only[g] = true
	}
	for _, g := range cfg.Filter.IgnoreGroups {
		if only[g] {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("group '%s' is in both ignore_groups and only_groups, it will be ignored", g))
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

func (v *ConfigValidator) validateField(field string, value interface{}) *ValidationError {
	for _, rule := range v.rules[field] {
		if err := rule.Validate(value); err != nil {
			err.Field = field + err.Field
			return err
		}
	}
	return nil
}

// ValidateFile checks file level properties of the configuration path.
func (v *ConfigValidator) ValidateFile(configPath string) *ValidationResult {
	result := &ValidationResult{Valid: true, Errors: make([]string, 0), Warnings: make([]string, 0)}
	if !strings.HasSuffix(configPath, ".yaml") && !strings.HasSuffix(configPath, ".yml") {
		result.Warnings = append(result.Warnings, "config file should use a .yaml or .yml extension")
	}
	return result
}

// GetFieldRules returns the rules registered for field.
func (v *ConfigValidator) GetFieldRules(field string) []ValidationRule {
	return v.rules[field]
}
