package main

import (
	"fmt"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/protocol"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wlclient %v\n", wl.Version)
		for _, iface := range protocol.Core() {
			fmt.Fprintf(out, "  %v v%v\n", iface.Name, iface.Version)
		}
	},
}
