// Package config loads wlclient's settings with Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings of the wlclient command.
type Config struct {
	// Display is the name or path of the compositor socket. Empty
	// means $WAYLAND_DISPLAY.
	Display string `mapstructure:"display"`

	RoundtripTimeout time.Duration `mapstructure:"roundtrip_timeout"`

	// LogLevel overrides the LOG_LEVEL environment variable.
	LogLevel string `mapstructure:"log_level"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the Prometheus endpoint served by monitor.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

var DefaultConfig = Config{
	RoundtripTimeout: 5 * time.Second,
	Metrics: MetricsConfig{
		Address: "127.0.0.1:9464",
	},
}

// SearchPaths returns the directories searched for wlclient.toml, in
// order of precedence.
func SearchPaths(getenv func(string) string) []string {
	var paths []string
	if dir := getenv("XDG_CONFIG_HOME"); dir != "" {
		paths = append(paths, filepath.Join(dir, "wlclient"))
	}
	if home := getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", "wlclient"))
	}
	return append(paths, ".")
}

// Load reads the configuration. If path is empty, wlclient.toml is
// looked for in SearchPaths and a missing file is not an error.
// Environment variables prefixed with WLCLIENT_ override the file, so
// WLCLIENT_METRICS_ADDRESS sets metrics.address.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("wlclient")
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		for _, p := range SearchPaths(os.Getenv) {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix("WLCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("display", DefaultConfig.Display)
	v.SetDefault("roundtrip_timeout", DefaultConfig.RoundtripTimeout)
	v.SetDefault("log_level", DefaultConfig.LogLevel)
	v.SetDefault("metrics.enabled", DefaultConfig.Metrics.Enabled)
	v.SetDefault("metrics.address", DefaultConfig.Metrics.Address)

	err := v.ReadInConfig()
	if err != nil {
		var nferr viper.ConfigFileNotFoundError
		if (path != "") || !errors.As(err, &nferr) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.RoundtripTimeout < 0 {
		return nil, fmt.Errorf("roundtrip_timeout must not be negative, got %v", cfg.RoundtripTimeout)
	}

	return &cfg, nil
}
