package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a summary of configuration and recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		fmt.Printf("store driver:   %s\n", cfg.Store.Driver)
		fmt.Printf("timezone:       %s\n", cfg.Timezone)
		fmt.Printf("dry run:        %v\n", cfg.Notifier.DryRun)
		fmt.Printf("sources:        %d\n", len(cfg.Sources))
		fmt.Printf("companies:      %d\n", len(cfg.Companies))

		stats, err := env.Store.SourceAnalytics(ctx, 7)
		if err != nil {
			return fmt.Errorf("source analytics: %w", err)
		}
		fmt.Println("source activity (last 7 days):")
		for _, s := range stats {
			fmt.Printf("  %-20s found=%-5d new=%-5d dup=%-5d success=%.0f%%\n",
				s.Source, s.JobsFound, s.JobsNew, s.JobsDuplicate, s.SuccessRate*100)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
