package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prodline/tracker/internal/config"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tracker",
		Short:         "Production line session tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to tracker.yaml (defaults to the executable's directory)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newSeedCmd(&configPath))
	root.AddCommand(newClientCmd(&configPath))
	return root
}

// loadConfig resolves the config path (flag first, then tracker.yaml
// next to the executable) and loads it, creating a default file on
// first run.
func loadConfig(configPath string) (*config.AppConfig, error) {
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "tracker.yaml")
	}
	return config.LoadConfig(configPath)
}

// newLogger builds the process logger from the logging section.
// Unknown levels fall back to info rather than failing startup.
func newLogger(cfg *config.AppConfig, out *os.File) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w zerolog.Logger
	if cfg.Logging.Pretty {
		w = zerolog.New(zerolog.ConsoleWriter{Out: out})
	} else {
		w = zerolog.New(out)
	}
	return w.Level(level).With().Timestamp().Logger()
}
