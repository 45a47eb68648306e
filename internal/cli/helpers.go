package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/touchsync/touchsync/internal/daemon"
	"github.com/touchsync/touchsync/internal/logging"
)

// loadConfig reads the daemon config.
func loadConfig() (daemon.Config, error) {
	return daemon.LoadConfig()
}

// openDaemon wires a daemon in-process for cfg.
func openDaemon(cmd *cobra.Command, cfg daemon.Config) (*daemon.Daemon, error) {
	logger, _, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: verbose,
	})
	if err != nil {
		return nil, err
	}
	return daemon.NewWithConfig(cmd.Context(), cfg, logger, cmd.Root().Version)
}

// localDaemon opens the configured store for a one-shot command. Logging is
// kept to warnings so command output stays readable.
func localDaemon(cmd *cobra.Command) (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !verbose {
		cfg.Logging.Level = "warn"
	}
	return openDaemon(cmd, cfg)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var profileFlag string

// addProfileFlag registers the required --profile flag on cmd.
func addProfileFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&profileFlag, "profile", "p", "", "Profile (couple) ID")
	_ = cmd.MarkFlagRequired("profile")
}
