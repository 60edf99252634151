// Remoteplay is the CLI entry point.
//
// It connects to a handheld running a remote-play server, reassembles the two
// video streams, forwards local input, and optionally relays the frames to a
// browser preview or records them to disk.
package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/remoteplay/internal/util"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "remoteplay",
		Short: "Remote-play client for a dual-screen handheld",
		Long: `Remoteplay connects to a handheld streaming its two screens over the LAN.

It keeps the control channel alive with heartbeats, reassembles the top and
bottom video streams, and forwards input back to the device.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		replayCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			pterm.Info.Printfln("Remoteplay v%s", version)
		},
	}
}
