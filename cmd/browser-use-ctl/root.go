// Copyright 2025 Joseph Cumines

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joeycumines/BrowserUseSDK/internal/config"
)

var (
	// Global flags
	portFileFlag string
	timeoutFlag  time.Duration

	// Shared state set during PersistentPreRun
	cfg *config.Config
)

// rootCmd is the base command for browser-use-ctl.
var rootCmd = &cobra.Command{
	Use:   "browser-use-ctl",
	Short: "Diagnostics for the browser-use tool-serving process",
	Long: `browser-use-ctl inspects a running browser-use stack from the outside.
It reads the port coordination file, connects to the tool-serving process the
same way the native host relay does, and reports what it finds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		if portFileFlag != "" {
			cfg.PortFilePath = portFileFlag
		}

		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&portFileFlag, "port-file", "", "port coordination file (default is the user config dir location)")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 3*time.Second, "per-operation timeout")
}
