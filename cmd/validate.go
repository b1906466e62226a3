package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/qa/scenarios"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and scenario without running",
	RunE:  validate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validate(cmd *cobra.Command, _ []string) error {
	cfg, sc, err := load()
	if err != nil {
		return err
	}
	sim, err := scenarios.Build(sc, cfg.Simulation)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	opts := sim.Options()
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "scenario %s ok: %d nodes, %d vehicles, %d requests, %d ticks, search %s, dispatch %s\n",
		sc.Name, len(sc.Nodes), len(sc.Vehicles), len(sc.Requests), opts.DurationMinutes+1, opts.Search, opts.Dispatch.Strategy)
	return err
}
