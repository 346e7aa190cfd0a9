package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/actions"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/spf13/cobra"
)

type mergeOptions struct {
	entities string
	batchID  string
}

var mergeOpts = mergeOptions{}

var mergeCmd = &cobra.Command{
	Use:   constants.ActionFuncsCommandMerge,
	Short: "Merge raw rows into the staging tables",
	Long: `Merge raw rows into the typed staging tables, keeping the latest version of each record.
Supply a batch id to merge a single run, or leave it blank to merge everything landed so far.
Merging the same rows twice leaves staging unchanged.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge()
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().SortFlags = false
	switches.addFlag(mergeCmd, &mergeOpts.entities, "entities", "", false, "")
	switches.addFlag(mergeCmd, &mergeOpts.batchID, "batch-id", "", false, "")
	pipeFlags.register(mergeCmd, "warn")
}

func runMerge() error {
	ctx, cancel := signalContext()
	defer cancel()
	log := pipeFlags.logger()
	cfg, closeFn, err := pipeFlags.setup(ctx, log)
	if err != nil {
		return err
	}
	defer closeFn()
	sum, err := actions.RunStaging(ctx, cfg, helper.CsvToStringSliceTrimSpaces(mergeOpts.entities), mergeOpts.batchID)
	if err != nil {
		return err
	}
	if err := actions.PrintJSON(os.Stdout, sum); err != nil {
		return err
	}
	if !sum.Success {
		return errors.Errorf("%v %v of %v entities failed to merge", constants.EmojiBang, sum.Failed, sum.TotalEntities)
	}
	return nil
}
