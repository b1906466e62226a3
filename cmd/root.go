package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/app"
	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/pkg/export"
	"github.com/kilianp07/fleetsim/qa/scenarios"
)

var (
	cfgPath      string
	scenarioPath string
	exportPath   string
	reportPath   string
)

var rootCmd = &cobra.Command{
	Use:          "fleetsim",
	Short:        "Urban mixed-fleet dispatch simulator",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario and print the final metrics",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file, overrides the configured one")
	runCmd.Flags().StringVarP(&exportPath, "export", "o", "", "write per-request outcomes to a .csv or .json file")
	runCmd.Flags().StringVar(&reportPath, "report", "", "write an HTML chart report of the run")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func load() (*config.Config, *scenarios.Scenario, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}
	path := cfg.Scenario
	if scenarioPath != "" {
		path = scenarioPath
	}
	if path == "" {
		return nil, nil, fmt.Errorf("no scenario: set --scenario or the scenario key")
	}
	sc, err := scenarios.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load scenario: %w", err)
	}
	return cfg, sc, nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, sc, err := load()
	if err != nil {
		return err
	}
	if reportPath != "" {
		cfg.Metrics.Sinks = append(cfg.Metrics.Sinks, factory.ModuleConfig{
			Type: "report",
			Conf: map[string]any{"path": reportPath, "title": sc.Name},
		})
	}
	svc, err := app.New(cfg, sc)
	if err != nil {
		return err
	}
	defer svc.Close()
	snap, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	if exportPath != "" {
		if err := writeExport(exportPath, svc.Sim.Requests()); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func writeExport(path string, reqs []model.Request) (err error) {
	var write func(io.Writer, []model.Request) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		write = export.WriteCSV
	case ".json":
		write = export.WriteJSON
	default:
		return fmt.Errorf("unsupported format %q", filepath.Ext(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f, reqs)
}
