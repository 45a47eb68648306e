// Package cli implements the touchsync command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "touchsync",
	Short: "touchsync: engagement engine for couples' haptic touch",
	Long: `touchsync tracks a couple's shared experience points, relationship tier,
perfect-day streak and daily connection goals.

Run "touchsync serve" for the HTTP API, or use the local commands to inspect
and update a profile directly against the configured store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
