// Package cmd contains the CLI commands for dsgate
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var logLevelFlag string

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "dsgate",
	Short: "dsgate - rate-limit-aware gateway for remote key-value stores",
	Long: `dsgate fronts a remote key-value store with budget-tracked admission,
TTL caching, classified retry and bulk operation management, keeping
clients inside the store's rate limits.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Overrides the configured logging level when set
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error, fatal, panic)")
}
