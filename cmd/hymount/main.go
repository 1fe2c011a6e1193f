// Command hymount drives the magic-mount engine: it discovers module
// contributions under a modules root, plans and executes the overlay for
// each Android partition, and reports on the result.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool
)

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}

	return logger
}

func loadConfigOrExit(cmd *cobra.Command) Config {
	path := configPath
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}

	return cfg
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hymount",
		Short: "Magic-mount engine for overlaying module files onto read-only Android partitions",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to hymount config (JSON/JSONC), defaults to "+DefaultConfigPath())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable structured debug logging")

	root.AddCommand(newMountCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newPartitionsCmd())
	root.AddCommand(newModulesCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
