// Command orderbot runs the multi-tenant WhatsApp ordering assistant.
//
//	orderbot serve              # webhook + admin API + workers
//	orderbot migrate            # create or update the schema
//	orderbot seed --file t.yaml # upsert tenants and catalogs
//
// Configuration comes from the environment; a .env file is loaded first
// when present.
package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-order-agent/internal/config"
	"github.com/tbourn/go-order-agent/internal/sysutil"
)

var version = "dev"

func main() {
	var envFile string

	root := &cobra.Command{
		Use:           "orderbot",
		Short:         "Multi-tenant WhatsApp ordering assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("orderbot failed")
		os.Exit(1)
	}
}

// loadConfig reads the configuration and points the global logger at
// stderr with the configured level.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}
