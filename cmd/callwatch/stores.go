package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"callwatch/internal/config"
	"callwatch/internal/storage"
	chstore "callwatch/internal/storage/clickhouse"
	"callwatch/internal/storage/memory"
	"callwatch/internal/storage/migrations"
	pgstore "callwatch/internal/storage/postgres"
)

// stores holds the storage implementations in use.
type stores struct {
	calls     storage.CallStore
	snapshots storage.SnapshotStore
}

// createStores opens the configured backends, applying migrations first.
func createStores(ctx context.Context, cfg *config.Config) (*stores, func(), error) {
	if cfg.UseMemory {
		log.Warn().Msg("using in-memory storage, calls are lost on restart")
		return &stores{
			calls:     memory.NewCallStore(),
			snapshots: memory.NewSnapshotStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	logApplied("postgres", applied)

	chConn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}
	logApplied("clickhouse", applied)

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return &stores{
		calls:     pgstore.NewCallStore(pool),
		snapshots: chstore.NewSnapshotStore(chConn),
	}, cleanup, nil
}

func logApplied(backend string, versions []string) {
	if len(versions) == 0 {
		log.Debug().Str("backend", backend).Msg("schema up to date")
		return
	}
	log.Info().Str("backend", backend).Strs("versions", versions).Msg("migrations applied")
}
