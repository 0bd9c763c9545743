package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search for ATS job boards matching configured search queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(cfg.SearchAPI.Keys) == 0 {
			return fmt.Errorf("discover: no search_api.keys configured")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return fmt.Errorf("init env: %w", err)
		}
		defer env.Close()

		var queries []string
		for _, src := range cfg.Sources {
			queries = append(queries, src.Queries...)
		}
		if len(queries) == 0 {
			return fmt.Errorf("discover: no source has queries configured")
		}

		summary, err := discovery.Discover(ctx, queries, env.Search, discovery.DefaultPatterns(), env.Store)
		if err != nil {
			return fmt.Errorf("run discovery: %w", err)
		}

		zap.L().Info("discovery complete",
			zap.Int("queries_run", summary.QueriesRun),
			zap.Int("results_examined", summary.ResultsExamined),
			zap.Int("boards_discovered", summary.BoardsDiscovered),
			zap.Any("by_platform", summary.BoardsByPlatform))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
