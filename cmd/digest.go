package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/store"
)

var (
	digestKindFlag string
	digestHours    int
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send a digest of active jobs since a lookback window, outside the cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind := model.DigestKindDaily
		if digestKindFlag == "weekly" {
			kind = model.DigestKindWeekly
		}

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		since := time.Now().In(time.Local).Add(-time.Duration(digestHours) * time.Hour)
		jobs, err := env.Store.ListCanonicalJobs(ctx, store.JobFilter{Status: model.StatusActive, Since: &since, Limit: 50})
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}

		if err := env.Notifier.SendDigest(ctx, kind, jobs); err != nil {
			return fmt.Errorf("send digest: %w", err)
		}

		zap.L().Info("digest sent", zap.String("kind", string(kind)), zap.Int("jobs", len(jobs)))
		return nil
	},
}

func init() {
	digestCmd.Flags().StringVar(&digestKindFlag, "kind", "daily", "digest kind: daily or weekly")
	digestCmd.Flags().IntVar(&digestHours, "hours", 24, "lookback window in hours")
	rootCmd.AddCommand(digestCmd)
}
