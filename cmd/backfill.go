package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/pipeline"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run a backfill pass across all configured sources; backfilled jobs are stored and scored but not analyzed or alerted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		run, err := env.Orchestrator.Run(ctx, pipeline.RunOptions{
			Type: model.RunTypeBackfill,
			Connector: pipeline.RunConnectorOptions{
				IncludeATS:         true,
				IncludeAggregators: true,
				IncludeUnderground: true,
			},
		})
		if err != nil {
			return fmt.Errorf("run backfill: %w", err)
		}

		zap.L().Info("backfill complete",
			zap.String("run_id", run.ID),
			zap.Int("jobs_found", run.JobsFound),
			zap.Int("jobs_new", run.JobsNew))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}
