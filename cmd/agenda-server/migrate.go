package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"agenda/backend/internal/config"
	"agenda/backend/internal/store/postgres"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(m *postgres.Migrator, log *slog.Logger, args []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			log.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
			return nil
		}),
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
	}
	steps := down.Flags().Int("steps", 1, "number of migrations to roll back")
	down.RunE = withMigrator(func(m *postgres.Migrator, log *slog.Logger, args []string) error {
		if err := m.Down(*steps); err != nil {
			return err
		}
		log.Info("migrations rolled back", slog.Int("steps", *steps))
		return nil
	})
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withMigrator(func(m *postgres.Migrator, log *slog.Logger, args []string) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(m *postgres.Migrator, log *slog.Logger, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}
			if err := m.Force(version); err != nil {
				return err
			}
			log.Warn("schema version forced", slog.Int("version", version))
			return nil
		}),
	})

	return cmd
}

func withMigrator(run func(m *postgres.Migrator, log *slog.Logger, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := newLogger(cfg.LogLevel)

		m, err := postgres.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("migrator init failed", args...)
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				log.Warn("migrator close failed", slog.Any("err", err))
			}
		}()
		return run(m, log, args)
	}
}
