// Package cmd contains the articlehub CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"articlehub/config"
	"articlehub/logger"

	"github.com/spf13/cobra"
)

var (
	cfg      *config.Config
	log      *slog.Logger
	logLevel string
	version  = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "articlehub",
	Short: "Article ingestion and retrieval service",
	Long: `articlehub stores uploaded .docx articles with a cover image and serves
them back by id, category, keyword search and RSS.

Configuration comes from .env, the YAML file named by CONFIG_FILE and the
process environment, in that order of precedence (lowest first).

Example usage:
  articlehub serve              # Run the HTTP API
  articlehub migrate            # Create tables and indexes
  articlehub sweep --dry-run    # Report blobs no article references
  articlehub events             # Log article lifecycle events from Kafka`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string reported by the CLI.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

func initConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log = logger.New(cfg.Logging.Level)

	log.Debug("configuration loaded",
		"version", version,
		"port", cfg.Server.Port,
		"blob_backend", cfg.Blob.Backend,
		"redis", cfg.Auth.RedisAddr != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)
	if cfg.SecretGenerated {
		log.Warn("SECRET_KEY is not set; using a random key, sessions will not survive a restart")
	}
	return nil
}
