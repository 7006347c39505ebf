package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		languages TEXT[] NOT NULL,
		modality TEXT NOT NULL DEFAULT 'in_person' CHECK (modality IN ('in_person', 'remote')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`DO $$ BEGIN CREATE TYPE session_status AS ENUM ('RECORDING', 'UPLOADING', 'PROCESSING', 'COMPLETED', 'FAILED'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		status session_status NOT NULL,
		started_by TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_meeting ON sessions (meeting_id)`,
	`CREATE TABLE IF NOT EXISTS captions (
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		start_ms BIGINT NOT NULL,
		end_ms BIGINT NOT NULL,
		source_lang TEXT NOT NULL,
		source_text TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		target_text TEXT NOT NULL,
		PRIMARY KEY (meeting_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS summaries (
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		lang TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (meeting_id, lang)
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
