package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const maxRetryAttempts = 5

var retryAlertsCmd = &cobra.Command{
	Use:   "retry-alerts",
	Short: "Flush due items from the alert retry queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		due, err := env.Store.DueRetries(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("list due retries: %w", err)
		}

		var sent, dropped, requeued int
		for _, item := range due {
			sendErr := env.Notifier.SendSystemAlert(ctx, item.Message)
			if sendErr == nil {
				if err := env.Store.RemoveRetry(ctx, item.ID); err != nil {
					zap.L().Warn("retry-alerts: remove sent item", zap.Int64("id", item.ID), zap.Error(err))
				}
				sent++
				continue
			}

			if item.RetryCount+1 >= maxRetryAttempts {
				zap.L().Warn("retry-alerts: dropping item after max attempts",
					zap.Int64("id", item.ID), zap.Int("attempts", item.RetryCount+1), zap.Error(sendErr))
				if err := env.Store.RemoveRetry(ctx, item.ID); err != nil {
					zap.L().Warn("retry-alerts: remove exhausted item", zap.Int64("id", item.ID), zap.Error(err))
				}
				dropped++
				continue
			}

			backoff := time.Duration(item.RetryCount+1) * 5 * time.Minute
			if err := env.Store.IncrementRetry(ctx, item.ID, time.Now().Add(backoff)); err != nil {
				zap.L().Warn("retry-alerts: reschedule item", zap.Int64("id", item.ID), zap.Error(err))
			}
			requeued++
		}

		zap.L().Info("retry-alerts complete", zap.Int("due", len(due)), zap.Int("sent", sent), zap.Int("requeued", requeued), zap.Int("dropped", dropped))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryAlertsCmd)
}
