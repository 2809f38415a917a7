package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pkgconfig "github.com/bearslyricattack/CompliK/portkill/pkg/config"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Loader handles configuration file loading and parsing
type Loader struct {
	configPath string
	lastHash   string
	env        *pkgconfig.EnvLoader
	validator  *pkgconfig.ConfigValidator
}

// NewLoader creates a loader for configPath. An empty path loads defaults
// plus environment overrides only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		env:        pkgconfig.NewEnvLoader(""),
		validator:  pkgconfig.NewConfigValidator(),
	}
}

// WithEnvLoader replaces the environment override source.
func (l *Loader) WithEnvLoader(env *pkgconfig.EnvLoader) *Loader {
	l.env = env
	return l
}

// Load reads, overrides, validates and defaults the configuration.
func (l *Loader) Load() (*models.Config, error) {
	var config models.Config

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file does not exist: %s", l.configPath)
			}
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, fmt.Errorf("configuration file is empty: %s", l.configPath)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file: %w", err)
		}
		l.lastHash = hashBytes(data)

		for _, w := range l.validator.ValidateFile(l.configPath).Warnings {
			legacy.L.Warn(w)
		}
	}

	if l.env != nil {
		if err := l.env.LoadFromEnv(&config); err != nil {
			return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
		}
	}

	result := l.validator.Validate(&config)
	for _, w := range result.Warnings {
		legacy.L.WithField("config", l.configPath).Warn(w)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(result.Errors, "; "))
	}

	config.ApplyDefaults()
	return &config, nil
}

// HasChanged checks if the configuration file has changed since last load
func (l *Loader) HasChanged() (bool, error) {
	currentHash, err := l.calculateHash()
	if err != nil {
		return false, err
	}
	if l.lastHash == "" {
		l.lastHash = currentHash
		return false, nil
	}
	changed := currentHash != l.lastHash
	if changed {
		l.lastHash = currentHash
	}
	return changed, nil
}

// GetConfigPath returns the configuration file path
func (l *Loader) GetConfigPath() string {
	return l.configPath
}

// GetConfigDir returns the directory containing the configuration file
func (l *Loader) GetConfigDir() string {
	return filepath.Dir(l.configPath)
}

func (l *Loader) calculateHash() (string, error) {
	file, err := os.Open(l.configPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
