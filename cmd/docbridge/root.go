package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docbridge/internal/config"
)

var (
	configFile string

	// v collects flag bindings from every subcommand before Load runs.
	v = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "docbridge",
	Short: "docbridge - user CRUD over pooled database clients",
	Long: `docbridge serves a user CRUD API and an optional Redis key/value API.
Every database call runs on a bounded worker pool so request handlers never
hold a pooled connection themselves.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./docbridge.yaml if present)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, configFile)
}

// newLogger configures the global zerolog logger and returns it.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	logger = logger.With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
