// Copyright 2025 Joseph Cumines

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/joeycumines/BrowserUseSDK/internal/portfile"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// statusCmd reports whether the tool-serving process is up. Liveness is
// checked with ping only, which the bridge answers on any connection, so a
// status check never interferes with a live extension session.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the tool-serving process",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s %s\n", keyStyle.Render("port file:"), cfg.PortFilePath)

		port, err := portfile.Read(cfg.PortFilePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Printf("%s %s\n", keyStyle.Render("bridge:"), downStyle.Render("not running")+dimStyle.Render(" (no port file)"))
				return nil
			}
			return err
		}
		fmt.Printf("%s %d\n", keyStyle.Render("port:"), port)

		client, err := dialBridge(port, timeoutFlag)
		if err != nil {
			fmt.Printf("%s %s\n", keyStyle.Render("bridge:"), downStyle.Render("stale")+dimStyle.Render(" (port file present, connection refused)"))
			return nil
		}
		defer client.close()

		rtt, err := client.ping(timeoutFlag)
		if err != nil {
			fmt.Printf("%s %s\n", keyStyle.Render("bridge:"), downStyle.Render("unresponsive")+dimStyle.Render(" (connected, no pong)"))
			return nil
		}

		fmt.Printf("%s %s%s\n", keyStyle.Render("bridge:"), okStyle.Render("running"),
			dimStyle.Render(fmt.Sprintf(" (ping %s)", rtt.Round(time.Microsecond))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
