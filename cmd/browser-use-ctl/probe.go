// Copyright 2025 Joseph Cumines

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joeycumines/BrowserUseSDK/internal/portfile"
)

var probeCount int

// probeCmd exercises the live protocol with a series of ping round trips.
// Pings never complete a handshake, so probing leaves any established
// extension link alone.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Measure ping round trips against the bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := portfile.Read(cfg.PortFilePath)
		if err != nil {
			return fmt.Errorf("read port file: %w", err)
		}

		client, err := dialBridge(port, timeoutFlag)
		if err != nil {
			return err
		}
		defer client.close()

		for i := 0; i < probeCount; i++ {
			rtt, err := client.ping(timeoutFlag)
			if err != nil {
				return fmt.Errorf("ping %d: %w", i+1, err)
			}
			fmt.Printf("ping %d: %s\n", i+1, rtt.Round(time.Microsecond))
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "number of pings to send")
	rootCmd.AddCommand(probeCmd)
}
