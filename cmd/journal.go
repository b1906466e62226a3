package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/infra/journal"
)

var (
	journalFile  string
	journalQuery journal.Query
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print journaled events matching the filters as JSON lines",
	RunE:  readJournal,
}

func init() {
	f := journalCmd.Flags()
	f.StringVarP(&journalFile, "file", "f", "", "journal file, defaults to journal.path from the configuration")
	f.StringVar(&journalQuery.RunID, "run", "", "run id")
	f.StringVarP(&journalQuery.Type, "type", "t", "", "event type, e.g. request_assigned")
	f.IntVar(&journalQuery.FromTick, "from", 0, "first tick")
	f.IntVar(&journalQuery.ToTick, "to", 0, "last tick, inclusive (0 for no bound)")
	f.StringVar(&journalQuery.VehicleID, "vehicle", "", "vehicle id")
	f.StringVar(&journalQuery.RequestID, "request", "", "request id, pooled members included")
	rootCmd.AddCommand(journalCmd)
}

func readJournal(cmd *cobra.Command, _ []string) error {
	path := journalFile
	if path == "" && cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Journal.Path
	}
	if path == "" {
		return fmt.Errorf("no journal: set --file or journal.path")
	}
	recs, err := journal.Read(cmd.Context(), path, journalQuery)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
