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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bearslyricattack/CompliK/portkill/internal/app"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command
func NewWatchCommand(opts *CommandOptions) *cobra.Command {
	var noInput bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously list and kill processes on the watched ports",
		Long: `Scan the watched ports on a fixed interval and print the listing whenever
the number of visible processes changes. Commands are read from stdin:
"k <id>" kills a listed item, "p <pid>" kills a pid, "a" kills everything
visible and "q" quits.`,
		Example: `
  # Watch two ports
  portkill watch --ports 3000,8080

  # Watch the ports of a configuration file, reloading it on change
  portkill watch --config portkill.yaml
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := RequirePorts(a); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go handleSignals(ctx, cancel)

			watch := app.WatchOptions{
				ConfigPath: opts.configPath,
				Loader:     opts.loader,
				Out:        cmd.OutOrStdout(),
			}
			if !noInput {
				watch.In = cmd.InOrStdin()
			}
			return a.Watch(ctx, watch)
		},
	}

	cmd.Flags().BoolVar(&noInput, "no-input", false, "Do not read commands from stdin")
	return cmd
}

// handleSignals cancels the watch on SIGINT or SIGTERM.
func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		legacy.L.WithFields(logrus.Fields{
			"signal": sig.String(),
		}).Info("Received shutdown signal, preparing graceful shutdown...")
		cancel()
	case <-ctx.Done():
	}
}
