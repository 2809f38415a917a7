/*
Copyright 2025 CompliK Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cmd implements the portkill subcommands.
package cmd

import (
	"fmt"

	"github.com/bearslyricattack/CompliK/portkill/internal/app"
	"github.com/bearslyricattack/CompliK/portkill/internal/config"
	pkgconfig "github.com/bearslyricattack/CompliK/portkill/pkg/config"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/spf13/cobra"
)

// CommandOptions holds the flags shared by every subcommand.
type CommandOptions struct {
	configPath string
	ports      string
	logLevel   string

	loader *config.Loader
	config *models.Config
}

// NewRootCommand creates the portkill command tree.
func NewRootCommand() *cobra.Command {
	opts := &CommandOptions{}

	rootCmd := &cobra.Command{
		Use:   "portkill",
		Short: "Watch ports and kill the processes bound to them",
		Long: `portkill resolves a set of TCP ports to the processes listening on them,
hides the ones matched by the configured filter rules and terminates the rest
on demand, escalating from a graceful to a forced signal when needed.`,
		Version:       "v0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&opts.ports, "ports", "p", "", "Ports to watch, e.g. 3000,8080,5000-5010 (overrides the configuration)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(NewWatchCommand(opts))
	rootCmd.AddCommand(NewListCommand(opts))
	rootCmd.AddCommand(NewKillCommand(opts))
	rootCmd.AddCommand(NewKillAllCommand(opts))

	return rootCmd
}

// Init loads the configuration and applies the global flags.
func (o *CommandOptions) Init() error {
	o.loader = config.NewLoader(o.configPath)
	cfg, err := o.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		cfg.Scanner.LogLevel = o.logLevel
	}
	legacy.SetLevel(cfg.Scanner.LogLevel)
	o.config = cfg
	return nil
}

// NewApp builds the core components, honouring --ports.
func (o *CommandOptions) NewApp() (*app.App, error) {
	if o.config == nil {
		if err := o.Init(); err != nil {
			return nil, err
		}
	}
	a, err := app.New(o.config)
	if err != nil {
		return nil, err
	}
	if o.ports != "" {
		ports, err := pkgconfig.ParsePortList(o.ports)
		if err != nil {
			return nil, fmt.Errorf("invalid --ports: %w", err)
		}
		a.WithPorts(ports)
	}
	a.WithLogLevel(o.logLevel)
	return a, nil
}

// RequirePorts fails when no port is configured.
func RequirePorts(a *app.App) error {
	if len(a.Ports) == 0 {
		return fmt.Errorf("no ports configured, use --ports or scanner.ports in the configuration")
	}
	return nil
}
