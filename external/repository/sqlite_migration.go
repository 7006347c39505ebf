package repository

import (
	"context"
	"database/sql"
	"strings"
)

var sqliteMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		languages TEXT NOT NULL,
		modality TEXT NOT NULL DEFAULT 'in_person' CHECK (modality IN ('in_person', 'remote')),
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		status TEXT NOT NULL CHECK (status IN ('RECORDING', 'UPLOADING', 'PROCESSING', 'COMPLETED', 'FAILED')),
		started_by TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_meeting ON sessions (meeting_id)`,
	`CREATE TABLE IF NOT EXISTS captions (
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
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
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (meeting_id, lang)
	)`,
}

func RunSQLiteMigration(ctx context.Context, db *sql.DB) error {
	for _, s := range sqliteMigrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
