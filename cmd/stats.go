package cmd

import (
	"os"

	"github.com/relloyd/fieldpipe/actions"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/spf13/cobra"
)

var statsEntities string

var statsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Print row counts and freshness of the staging tables",
	Long:         `Print row counts, last-updated range, batch counts and entity-specific metrics of the staging tables as JSON`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		log := pipeFlags.logger()
		cfg, closeFn, err := pipeFlags.setup(ctx, log)
		if err != nil {
			return err
		}
		defer closeFn()
		s, err := actions.StagingStatistics(ctx, cfg, helper.CsvToStringSliceTrimSpaces(statsEntities))
		if err != nil {
			return err
		}
		return actions.PrintJSON(os.Stdout, s)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().SortFlags = false
	switches.addFlag(statsCmd, &statsEntities, "entities", "", false, "")
	pipeFlags.register(statsCmd, "warn")
}
