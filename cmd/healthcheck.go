package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Check database connectivity and exit non-zero on failure",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: init env: %v\n", err)
			os.Exit(1)
		}
		defer env.Close()

		if err := env.Store.Ping(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: database ping: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCheckCmd)
}
