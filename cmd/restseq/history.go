package main

import (
	"fmt"

	"github.com/blackcoderx/restseq/pkg/config"
	"github.com/blackcoderx/restseq/pkg/logging"
	"github.com/blackcoderx/restseq/pkg/report"
	"github.com/blackcoderx/restseq/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List stored runs, or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.ResultsDB == "" {
			return fmt.Errorf("results_db is not configured")
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := storage.OpenResultsDB(cfg.ResultsDB, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			summary, err := db.LoadRun(args[0])
			if err != nil {
				return err
			}
			fmt.Print(report.Format(summary, true))
			return nil
		}

		runs, err := db.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %-20s %d/%d succeeded\n",
				r.ID, r.StartTime.Format("2006-01-02 15:04:05"), r.Grammar, r.Succeeded, r.Total)
		}
		return nil
	},
}
