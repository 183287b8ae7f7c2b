package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every configured endpoint",
	Long: `Probe every endpoint of every chain once and report which endpoint each
chain would use.

Examples:
  odyssey health
  odyssey health --json`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.registry.ProbeAll(contextOrBackground(cmd))
	report := a.service.GetHealth()

	out := cmd.OutOrStdout()
	if healthJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(report), "failed to encode health")
	}

	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(out, "🩺 Endpoint health (%s)\n\n", networkLabel())
	for _, id := range ids {
		h := report[id]
		state := color.GreenString("healthy")
		if !h.Healthy {
			state = color.RedString("unhealthy")
		}
		fmt.Fprintf(out, "%s %s\n", color.CyanString(id), state)

		groups := make([]string, 0, len(h.Groups))
		for name := range h.Groups {
			groups = append(groups, name)
		}
		sort.Strings(groups)
		for _, name := range groups {
			g := h.Groups[name]
			for _, e := range g.Endpoints {
				mark := color.RedString("✗")
				if e.Healthy {
					mark = color.GreenString("✓")
				}
				current := ""
				if e.Endpoint == g.CurrentEndpoint {
					current = color.YellowString(" (current)")
				}
				fmt.Fprintf(out, "   %s %-14s %s%s\n", mark, name, e.Endpoint, current)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the report as JSON")
}
