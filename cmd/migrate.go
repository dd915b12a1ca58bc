package cmd

import (
	"articlehub/repository"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the article and account tables",
	Long: `Create tables and indexes in the database named by DATABASE_URL.
Migrations are idempotent; running them against an up-to-date schema is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := repository.Open(ctx, cfg.Database.URL, repository.Options{MaxConns: 1})
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return err
		}
		log.Info("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
