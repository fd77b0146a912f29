package main

import (
	"fmt"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/internal/config"
	"deedles.dev/wlengine/internal/debug"
	"github.com/spf13/cobra"
)

var (
	configPath string
	display    string

	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "wlclient",
		Short: "Inspect and exercise a Wayland compositor",
		Long: `wlclient talks to a Wayland compositor over its socket. It can list the
compositor's globals, create a surface backed by shared memory, watch for
global changes, and dump the interfaces described by a protocol XML file.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

func init() {
	rootCmd.Version = wl.Version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: search for wlclient.toml)")
	rootCmd.PersistentFlags().StringVarP(&display, "display", "d", "", "compositor socket name or path")

	rootCmd.AddCommand(globalsCmd)
	rootCmd.AddCommand(surfaceCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(protocolCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("display") {
		c.Display = display
	}
	if c.LogLevel != "" {
		debug.Logger.SetLevel(debug.ParseLevel(c.LogLevel))
	}

	cfg = c
	return nil
}

// connect connects to the configured compositor and fetches its
// globals.
func connect(opts ...wl.Option) (*wl.Connection, *wl.Registry, error) {
	c, err := wl.Connect(cfg.Display, opts...)
	if err != nil {
		return nil, nil, err
	}

	r, err := c.GetRegistry()
	if err != nil {
		c.Disconnect()
		return nil, nil, fmt.Errorf("get registry: %w", err)
	}
	err = c.Roundtrip(cfg.RoundtripTimeout)
	if err != nil {
		c.Disconnect()
		return nil, nil, fmt.Errorf("initial roundtrip: %w", err)
	}

	return c, r, nil
}
