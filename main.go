package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/nasermirzaei89/env"
	"github.com/neayi/discoursesync/db/sqlite3"
	"github.com/spf13/cobra"
)

func main() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: getLogLevelFromEnv(),
	})))

	rootCmd := &cobra.Command{
		Use:           "discoursesync",
		Short:         "Backfill wiki comment threads into a Discourse forum",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newResetDBCmd())

	err = rootCmd.Execute()
	if err != nil {
		slog.Error("failed to run command", "error", err)
		os.Exit(1)
	}
}

func newMigrateCmd() *cobra.Command {
	var launch bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate comment threads to the forum",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !launch {
				printChecklist()

				return nil
			}

			app, err := NewApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create app: %w", err)
			}

			return app.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&launch, "launch", false, "actually run the migration")

	return cmd
}

// newResetDBCmd drops and recreates the local wiki extract schema. The
// local database is a throwaway extract; resetting it also clears the
// migrated-post bookkeeping, so the next migrate run re-posts everything.
func newResetDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-db",
		Short: "Drop and recreate the local wiki extract schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite3.NewDB(cmd.Context(), env.GetString("DB_DSN", "file:wiki.db"))
			if err != nil {
				return fmt.Errorf("failed to create database connection: %w", err)
			}

			defer func() {
				err := db.Close()
				if err != nil {
					slog.Error("failed to close database", "error", err)
				}
			}()

			err = sqlite3.MigrateDown(cmd.Context(), db)
			if err != nil {
				return fmt.Errorf("failed to revert migrations: %w", err)
			}

			err = sqlite3.MigrateUp(cmd.Context(), db)
			if err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			return nil
		},
	}
}

// printChecklist reminds the operator of the preconditions before any
// write hits the forum. Running without --launch has no side effects.
func printChecklist() {
	fmt.Println("This command creates users, topics and posts on the target forum.")
	fmt.Println()
	fmt.Println("Before launching, make sure that:")
	fmt.Println("  - the forum database is backed up")
	fmt.Println("  - outbound email is disabled on the forum")
	fmt.Println("  - API rate limits are relaxed for the API user")
	fmt.Println("  - the minimum post length is set to 1")
	fmt.Println()
	fmt.Println("Then re-run with --launch.")
}
