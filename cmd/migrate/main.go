package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hackgods/doctor-booking/internal/db"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the doctor booking database schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("dsn", os.Getenv("POSTGRES_DSN"), "Postgres connection string (defaults to POSTGRES_DSN)")

	root.AddCommand(upCmd())
	root.AddCommand(downCmd())
	root.AddCommand(forceCmd())
	root.AddCommand(versionCmd())
	return root
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *db.Migrator) error {
				applied, err := m.Up()
				if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				if !applied {
					cmd.Println("no pending migrations")
					return nil
				}
				return printVersion(cmd, m)
			})
		},
	}
}

func downCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrator(cmd, func(m *db.Migrator) error {
				rolled, err := m.Down(steps)
				if err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				if !rolled {
					cmd.Println("nothing to roll back")
					return nil
				}
				return printVersion(cmd, m)
			})
		},
	}
	cmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	return cmd
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withMigrator(cmd, func(m *db.Migrator) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("migrate force: %w", err)
				}
				return printVersion(cmd, m)
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *db.Migrator) error {
				return printVersion(cmd, m)
			})
		},
	}
}

func withMigrator(cmd *cobra.Command, fn func(m *db.Migrator) error) error {
	dsn, _ := cmd.Flags().GetString("dsn")
	if dsn == "" {
		return errors.New("POSTGRES_DSN is required (set --dsn, .env or environment)")
	}

	m, err := db.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(m)
}

func printVersion(cmd *cobra.Command, m *db.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	cmd.Printf("schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
