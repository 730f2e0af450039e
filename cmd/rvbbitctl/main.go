package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag string
	rootCmd = &cobra.Command{
		Use:   "rvbbitctl",
		Short: "CLI client for the RVBBIT SQL API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "rvbbit-server base URL")

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run a SQL statement against /sql",
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, _ := cmd.Flags().GetString("sql")
			if sql == "" {
				return fmt.Errorf("--sql required")
			}
			return runQuery(apiFlag, sql, os.Stdout)
		},
	}
	queryCmd.Flags().StringP("sql", "s", "", "SQL statement to execute (required)")
	_ = queryCmd.MarkFlagRequired("sql")
	rootCmd.AddCommand(queryCmd)

	jobCmd := &cobra.Command{
		Use:   "job [job-id]",
		Short: "Look up a background job by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobLookup(apiFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(jobCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check rvbbit-server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthCheck(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
