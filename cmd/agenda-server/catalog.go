package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"agenda/backend/internal/config"
	"agenda/backend/internal/service/catalog"
	"agenda/backend/internal/store/postgres"
	"agenda/backend/internal/store/rediscache"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage businesses, professionals and services",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Upsert a JSON catalog document and drop the cached copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			doc, err := catalog.Decode(f)
			if err != nil {
				return err
			}

			db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
				log.Error("database connection failed", args...)
				return err
			}
			defer func() {
				if err := postgres.Close(db); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()
			repo := postgres.NewCatalogRepo(db)

			var cache catalog.Invalidator
			if redisClient := buildRedisClient(ctx, cfg.RedisURL, log); redisClient != nil {
				defer func() { _ = redisClient.Close() }()
				cache = rediscache.New(redisClient, repo, repo, cfg.CacheTTL, log)
			}

			sum, err := catalog.NewImporter(repo, cache, log).Import(ctx, doc)
			if err != nil {
				return err
			}
			fmt.Printf("businesses=%d professionals=%d services=%d stale_cache_entries=%d\n",
				sum.Businesses, sum.Professionals, sum.Services, sum.StaleEntries)
			return nil
		},
	})

	return cmd
}
