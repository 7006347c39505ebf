package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/internal/config"
	"github.com/sweetginger/Nyogi/internal/repository"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		if cfg.DatabaseDriver == config.DatabaseDriverSQLite {
			return openSQLiteRepository(ctx, cfg.DatabaseURL)
		}
		return openPostgresRepository(ctx, cfg.DatabaseURL)
	})
}

func openPostgresRepository(ctx context.Context, url string) (repository.Repository, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigration(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewPostgresRepository(p), nil
}

func openSQLiteRepository(ctx context.Context, path string) (repository.Repository, error) {
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := RunSQLiteMigration(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewSQLiteRepository(db), nil
}
