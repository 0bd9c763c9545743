package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/pipeline"
)

var (
	ingestATS         bool
	ingestAggregators bool
	ingestUnderground bool
	ingestDryRun      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingest pass: dispatch connectors, normalize, dedup, score, analyze, notify",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		if !ingestATS && !ingestAggregators && !ingestUnderground {
			ingestATS = true
		}

		run, err := env.Orchestrator.Run(ctx, pipeline.RunOptions{
			Type:   model.RunTypeIngest,
			DryRun: ingestDryRun,
			Connector: pipeline.RunConnectorOptions{
				IncludeATS:         ingestATS,
				IncludeAggregators: ingestAggregators,
				IncludeUnderground: ingestUnderground,
			},
		})
		if err != nil {
			return fmt.Errorf("run ingest: %w", err)
		}

		zap.L().Info("ingest complete",
			zap.String("run_id", run.ID),
			zap.Int("jobs_new", run.JobsNew),
			zap.Int("alerts_sent", run.AlertsSent),
			zap.Int("errors", len(run.Errors)))
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestATS, "ats", false, "include ATS connectors")
	ingestCmd.Flags().BoolVar(&ingestAggregators, "aggregators", false, "include aggregator (search-backed) connectors")
	ingestCmd.Flags().BoolVar(&ingestUnderground, "underground", false, "include underground (search-backed) connectors")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "process jobs but suppress notifications")
	rootCmd.AddCommand(ingestCmd)
}
