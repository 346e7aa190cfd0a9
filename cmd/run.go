package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/actions"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/spf13/cobra"
)

type runOptions struct {
	startDate  string
	endDate    string
	hours      int
	entities   string
	tenants    string
	batchSize  int
	incrBatch  int // incremental runs default to smaller raw transactions
	maxRetries int
	staging    bool
	entity     string
}

var runOpts = runOptions{}

var runCmd = &cobra.Command{
	Use:   constants.ActionFuncsCommandRun,
	Short: "Extract entities from every tenant into the raw warehouse layer",
	Long: `Extract entities from every tenant into the raw warehouse layer, tagging each row with
a batch id, then optionally merge the entities that succeeded into staging.
The run summary is printed to STDOUT as JSON.`,
}

var runFullCmd = &cobra.Command{
	Use:          constants.ActionFuncsSubCommandFull,
	Short:        "Run the pipeline over an explicit date range",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFull()
	},
}

var runIncrementalCmd = &cobra.Command{
	Use:          constants.ActionFuncsSubCommandIncr,
	Short:        "Run the pipeline over the last few hours",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIncremental()
	},
}

var runEntityCmd = &cobra.Command{
	Use:          constants.ActionFuncsSubCommandEntity + " <entity>",
	Short:        "Run the pipeline for a single entity",
	Args:         getEntityArgFunc(&runOpts.entity),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEntity()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runFullCmd, runIncrementalCmd, runEntityCmd)
	for _, c := range []*cobra.Command{runFullCmd, runEntityCmd} {
		c.Flags().SortFlags = false
		switches.addFlag(c, &runOpts.startDate, "start-date", "", true, "")
		switches.addFlag(c, &runOpts.endDate, "end-date", "", true, "")
	}
	runIncrementalCmd.Flags().SortFlags = false
	switches.addFlag(runIncrementalCmd, &runOpts.hours, "hours", fmt.Sprint(constants.IncrementalLookbackHrs), false, "")
	for _, c := range []*cobra.Command{runFullCmd, runIncrementalCmd} {
		switches.addFlag(c, &runOpts.entities, "entities", "", false, "")
	}
	switches.addFlag(runFullCmd, &runOpts.batchSize, "batch-size", fmt.Sprint(constants.RawLoadChunkSize), false, "")
	switches.addFlag(runEntityCmd, &runOpts.batchSize, "batch-size", fmt.Sprint(constants.RawLoadChunkSize), false, "")
	switches.addFlag(runIncrementalCmd, &runOpts.incrBatch, "batch-size", fmt.Sprint(constants.IncrementalBatchSize), false, "")
	for _, c := range []*cobra.Command{runFullCmd, runIncrementalCmd, runEntityCmd} {
		switches.addFlag(c, &runOpts.tenants, "tenants", "", false, "")
		switches.addFlag(c, &runOpts.maxRetries, "max-retries", "0", false, "")
		switches.addFlag(c, &runOpts.staging, "staging", "false", false, "")
		pipeFlags.register(c, "warn")
	}
}

func runFull() error {
	return runPipeline(func(run pipelineRunner) (actions.PipelineResult, error) {
		return actions.RunFullPipeline(run.ctx, run.cfg, run.request())
	})
}

func runIncremental() error {
	return runPipeline(func(run pipelineRunner) (actions.PipelineResult, error) {
		return actions.RunIncrementalPipeline(run.ctx, run.cfg, actions.IncrementalRequest{
			HoursLookback: runOpts.hours,
			Entities:      helper.CsvToStringSliceTrimSpaces(runOpts.entities),
			Tenants:       helper.CsvToStringSliceTrimSpaces(runOpts.tenants),
			BatchSize:     runOpts.incrBatch,
			MaxRetries:    runOpts.maxRetries,
			RunStaging:    runOpts.staging,
		})
	})
}

func runEntity() error {
	return runPipeline(func(run pipelineRunner) (actions.PipelineResult, error) {
		return actions.RunSingleEntityPipeline(run.ctx, run.cfg, runOpts.entity, run.request())
	})
}

// runPipeline wires the pipeline, calls fn and prints the result.
// It fails when no entity succeeded so schedulers can alert on the exit code.
func runPipeline(fn func(run pipelineRunner) (actions.PipelineResult, error)) error {
	ctx, cancel := signalContext()
	defer cancel()
	log := pipeFlags.logger()
	cfg, closeFn, err := pipeFlags.setup(ctx, log)
	if err != nil {
		return err
	}
	defer closeFn()
	res, err := fn(pipelineRunner{ctx: ctx, cfg: cfg})
	if err != nil {
		return err
	}
	if err := actions.PrintJSON(os.Stdout, res); err != nil {
		return err
	}
	if !res.Success {
		return errors.Errorf("%v No entity succeeded in batch %v", constants.EmojiBang, res.BatchID)
	}
	return nil
}

type pipelineRunner struct {
	ctx context.Context
	cfg *actions.PipelineConfig
}

func (r pipelineRunner) request() actions.PipelineRequest {
	return actions.PipelineRequest{
		StartDate:  runOpts.startDate,
		EndDate:    runOpts.endDate,
		Entities:   helper.CsvToStringSliceTrimSpaces(runOpts.entities),
		Tenants:    helper.CsvToStringSliceTrimSpaces(runOpts.tenants),
		BatchSize:  runOpts.batchSize,
		MaxRetries: runOpts.maxRetries,
		RunStaging: runOpts.staging,
	}
}
