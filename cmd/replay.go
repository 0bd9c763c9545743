package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/pipeline"
)

var replayDryRun bool

// replayCmd re-runs the full ingest pipeline tagged as a replay, for
// reprocessing a day's sources after a scoring or normalization fix without
// muddying the ingest run-log history used for cron catch-up decisions.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run the pipeline across all sources, tagged as a replay run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		run, err := env.Orchestrator.Run(ctx, pipeline.RunOptions{
			Type:   model.RunTypeReplay,
			DryRun: replayDryRun,
			Connector: pipeline.RunConnectorOptions{
				IncludeATS:         true,
				IncludeAggregators: true,
				IncludeUnderground: true,
			},
		})
		if err != nil {
			return fmt.Errorf("run replay: %w", err)
		}

		zap.L().Info("replay complete",
			zap.String("run_id", run.ID),
			zap.Int("jobs_new", run.JobsNew))
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", true, "process jobs but suppress notifications (default true for replay)")
	rootCmd.AddCommand(replayCmd)
}
