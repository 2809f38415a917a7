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
	"encoding/json"
	"fmt"

	"github.com/bearslyricattack/CompliK/portkill/internal/core/filter"
	"github.com/bearslyricattack/CompliK/portkill/internal/display"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command
func NewListCommand(opts *CommandOptions) *cobra.Command {
	var (
		all    bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the processes listening on the watched ports",
		Example: `
  # List the processes on two ports
  portkill list --ports 3000,8080

  # List every listening TCP port, ignoring the port set
  portkill list --all

  # Output in JSON format
  portkill list --output=json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var snap models.Snapshot
			if all {
				snap = a.Scanner.ScanAll(cmd.Context())
			} else {
				if err := RequirePorts(a); err != nil {
					return err
				}
				snap = a.Scanner.Scan(cmd.Context(), a.Ports)
			}
			snap = filter.Apply(a.Rules, snap)

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			case "table", "":
				_, err := display.Render(cmd.OutOrStdout(), a.Rules.Description(), snap)
				return err
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every listening TCP port")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}
