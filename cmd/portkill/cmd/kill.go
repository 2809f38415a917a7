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
	"fmt"

	"github.com/bearslyricattack/CompliK/portkill/internal/display"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/spf13/cobra"
)

// NewKillCommand creates the kill command
func NewKillCommand(opts *CommandOptions) *cobra.Command {
	var (
		pid  int
		port int
	)

	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kill one process by pid or by the port it listens on",
		Example: `
  # Kill a pid
  portkill kill --pid 4242

  # Kill whatever listens on port 3000
  portkill kill --port 3000
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pid == 0) == (port == 0) {
				return fmt.Errorf("exactly one of --pid or --port is required")
			}
			a, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if port != 0 {
				if port < 1 || port > 65535 {
					return fmt.Errorf("port %d is out of range 1-65535", port)
				}
				rec, ok := a.Scanner.Scan(cmd.Context(), []uint16{uint16(port)}).Get(uint16(port))
				if !ok {
					return fmt.Errorf("nothing is listening on port %d", port)
				}
				pid = rec.PID
			}

			outcome := a.Killer.KillSingle(pid)
			fmt.Fprintln(cmd.OutOrStdout(), display.FormatOutcome(outcome))
			if outcome.Final == models.StateUnknown {
				return fmt.Errorf("could not confirm that pid %d was terminated", pid)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "Process id to kill")
	cmd.Flags().IntVar(&port, "port", 0, "Kill the process listening on this port")
	return cmd
}

// NewKillAllCommand creates the kill-all command
func NewKillAllCommand(opts *CommandOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kill-all",
		Short: "Kill every visible process on the watched ports",
		Long: `Resolve the current owners of the watched ports, drop the ones matched by
the filter rules and kill the rest one after another. A failure on one
process does not stop the others.`,
		Example: `
  # Kill everything on the ports of the configuration, except filtered processes
  portkill kill-all --config portkill.yaml
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

			result := a.Killer.KillBulk(cmd.Context(), a.Ports, a.Rules)
			fmt.Fprint(cmd.OutOrStdout(), display.FormatBulk(result))
			return nil
		},
	}
}
