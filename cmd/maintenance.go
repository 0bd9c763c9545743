package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	archiveAfterDays int
	purgeAfterDays   int
)

var archiveOldJobsCmd = &cobra.Command{
	Use:   "archive-old-jobs",
	Short: "Archive stale active jobs and purge old raw job rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		result, err := env.Scheduler.ArchiveAndPurge(ctx, archiveAfterDays, purgeAfterDays)
		if err != nil {
			return fmt.Errorf("archive and purge: %w", err)
		}

		zap.L().Info("archive/purge complete", zap.Int("archived", result.Archived), zap.Int("purged", result.Purged))
		return nil
	},
}

func init() {
	archiveOldJobsCmd.Flags().IntVar(&archiveAfterDays, "archive-after-days", 30, "archive active jobs first seen before this many days ago")
	archiveOldJobsCmd.Flags().IntVar(&purgeAfterDays, "purge-after-days", 90, "delete raw job rows fetched before this many days ago")
	rootCmd.AddCommand(archiveOldJobsCmd)
}
