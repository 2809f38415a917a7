package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/sirupsen/logrus"
)

// EnvLoader overrides configuration fields from environment variables.
// Field "scanner.scan_interval" maps to PORTKILL_SCANNER_SCAN_INTERVAL.
type EnvLoader struct {
	prefix     string
	separator  string
	mapping    map[string]string
	converters map[string]TypeConverter
	lookup     func(string) (string, bool)
}

// TypeConverter turns an environment string into a field value.
type TypeConverter interface {
	Convert(value string) (interface{}, error)
}

// NewEnvLoader creates a loader for prefix, PORTKILL when empty.
func NewEnvLoader(prefix string) *EnvLoader {
	if prefix == "" {
		prefix = "PORTKILL"
	}
	return &EnvLoader{
		prefix:     strings.ToUpper(prefix),
		separator:  "_",
		mapping:    make(map[string]string),
		converters: make(map[string]TypeConverter),
		lookup:     os.LookupEnv,
	}
}

// WithLookup replaces the environment source, used by tests.
func (e *EnvLoader) WithLookup(lookup func(string) (string, bool)) *EnvLoader {
	e.lookup = lookup
	return e
}

// AddMapping maps a field to a custom environment key.
func (e *EnvLoader) AddMapping(field, envKey string) *EnvLoader {
	e.mapping[field] = envKey
	return e
}

// AddConverter sets the converter used for field.
func (e *EnvLoader) AddConverter(field string, converter TypeConverter) *EnvLoader {
	e.converters[field] = converter
	return e
}

// LoadFromEnv applies every set variable to config.
func (e *EnvLoader) LoadFromEnv(config *models.Config) error {
	fields := map[string]interface{}{
		"scanner.ports":                   &config.Scanner.Ports,
		"scanner.port_ranges":             &config.Scanner.PortRanges,
		"scanner.log_level":               &config.Scanner.LogLevel,
		"scanner.scan_interval":           &config.Scanner.ScanInterval,
		"scanner.enumerate_timeout":       &config.Scanner.EnumerateTimeout,
		"scanner.chunk_size":              &config.Scanner.ChunkSize,
		"scanner.large_set_threshold":     &config.Scanner.LargeSetThreshold,
		"scanner.enrich.verbose":          &config.Scanner.Enrich.Verbose,
		"scanner.enrich.performance":      &config.Scanner.Enrich.Performance,
		"scanner.enrich.containers":       &config.Scanner.Enrich.Containers,
		"scanner.enrich.runtime_endpoint": &config.Scanner.Enrich.RuntimeEndpoint,
		"filter.ignore_ports":             &config.Filter.IgnorePorts,
		"filter.ignore_processes":         &config.Filter.IgnoreProcesses,
		"filter.ignore_patterns":          &config.Filter.IgnorePatterns,
		"filter.ignore_groups":            &config.Filter.IgnoreGroups,
		"filter.only_groups":              &config.Filter.OnlyGroups,
		"kill.grace_period":               &config.Kill.GracePeriod,
		"monitor.min_refresh_interval":    &config.Monitor.MinRefreshInterval,
		"monitor.interaction_cooldown":    &config.Monitor.InteractionCooldown,
		"monitor.settle_delay":            &config.Monitor.SettleDelay,
		"monitor.release_delay":           &config.Monitor.ReleaseDelay,
		"metrics.enabled":                 &config.Metrics.Enabled,
		"metrics.port":                    &config.Metrics.Port,
		"metrics.path":                    &config.Metrics.Path,
		"api.enabled":                     &config.API.Enabled,
		"api.port":                        &config.API.Port,
	}

	applied := 0
	for field, target := range fields {
		raw, ok := e.lookup(e.getEnvKey(field))
		if !ok || raw == "" {
			continue
		}
		value, err := e.convertValue(field, target, raw)
		if err != nil {
			legacy.L.WithFields(logrus.Fields{
				"field": field,
				"value": raw,
				"error": err.Error(),
			}).Error("Failed to convert environment variable")
			return fmt.Errorf("field '%s': %w", field, err)
		}
		if err := setFieldValue(target, value); err != nil {
			return fmt.Errorf("field '%s': %w", field, err)
		}
		applied++
		legacy.L.WithFields(logrus.Fields{
			"field":   field,
			"env_key": e.getEnvKey(field),
		}).Debug("Configuration field overridden from environment")
	}
	if applied > 0 {
		legacy.L.WithFields(logrus.Fields{"prefix": e.prefix, "count": applied}).Info("Applied environment overrides")
	}
	return nil
}

func (e *EnvLoader) getEnvKey(field string) string {
	if custom, ok := e.mapping[field]; ok {
		return custom
	}
	key := strings.ReplaceAll(field, ".", e.separator)
	key = strings.ReplaceAll(key, "-", "_")
	return e.prefix + e.separator + strings.ToUpper(key)
}

func (e *EnvLoader) convertValue(field string, target interface{}, raw string) (interface{}, error) {
	if converter, ok := e.converters[field]; ok {
		return converter.Convert(raw)
	}
	// infer from the target type
	switch target.(type) {
	case *time.Duration:
		return (&DurationConverter{}).Convert(raw)
	case *bool:
		return (&BoolConverter{}).Convert(raw)
	case *int:
		return (&IntConverter{}).Convert(raw)
	case *[]int:
		return (&IntSliceConverter{}).Convert(raw)
	case *[]string:
		return (&StringSliceConverter{}).Convert(raw)
	default:
		return raw, nil
	}
}

func setFieldValue(target interface{}, value interface{}) error {
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Ptr {
		return fmt.Errorf("target must be a pointer")
	}
	tv = tv.Elem()
	vv := reflect.ValueOf(value)
	if !vv.Type().ConvertibleTo(tv.Type()) {
		return fmt.Errorf("cannot convert %v to %v", vv.Type(), tv.Type())
	}
	tv.Set(vv.Convert(tv.Type()))
	return nil
}

// BoolConverter parses boolean values
type BoolConverter struct{}

func (c *BoolConverter) Convert(value string) (interface{}, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on", "enabled":
		return true, nil
	case "false", "0", "no", "off", "disabled":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", value)
	}
}

// DurationConverter parses durations such as "500ms"
type DurationConverter struct{}

func (c *DurationConverter) Convert(value string) (interface{}, error) {
	return time.ParseDuration(value)
}

// IntConverter parses integers
type IntConverter struct{}

func (c *IntConverter) Convert(value string) (interface{}, error) {
	return strconv.Atoi(value)
}

// StringSliceConverter splits on Separator, "," by default
type StringSliceConverter struct {
	Separator string
}

func (c *StringSliceConverter) Convert(value string) (interface{}, error) {
	sep := c.Separator
	if sep == "" {
		sep = ","
	}
	out := make([]string, 0)
	for _, item := range strings.Split(value, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// IntSliceConverter parses "3000,8080"
type IntSliceConverter struct{}

func (c *IntSliceConverter) Convert(value string) (interface{}, error) {
	items, _ := (&StringSliceConverter{}).Convert(value)
	out := make([]int, 0)
	for _, item := range items.([]string) {
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", item)
		}
		out = append(out, n)
	}
	return out, nil
}
