package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sweetginger/Nyogi/internal/repository"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSessionColumns = `id, meeting_id, status, started_by, started_at, ended_at, created_at, updated_at`

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens path with foreign keys enabled and a busy timeout.
// ":memory:" yields a private in-memory database bound to a single connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := sqliteDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	path = strings.TrimPrefix(path, "sqlite://")
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}

func NewSQLiteRepository(db *sql.DB) repository.Repository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetMeeting(ctx context.Context, meetingID string) (*repository.Meeting, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, languages, modality, created_at FROM meetings WHERE id = ?`,
		meetingID)
	var m repository.Meeting
	var languages string
	var createdAt int64
	if err := row.Scan(&m.ID, &m.Title, &languages, &m.Modality, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapSQLiteError("get meeting", err)
	}
	if err := json.Unmarshal([]byte(languages), &m.Languages); err != nil {
		return nil, &repository.PersistenceError{Op: "get meeting", Code: repository.ErrorCodeUnknown, Err: fmt.Errorf("decode languages: %w", err)}
	}
	m.CreatedAt = timeFromUnixMilli(createdAt)
	return &m, nil
}

func (r *SQLiteRepository) EnsureMeeting(ctx context.Context, meeting repository.Meeting) error {
	languages, err := json.Marshal(meeting.Languages)
	if err != nil {
		return fmt.Errorf("encode languages: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO meetings (id, title, languages, modality, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		meeting.ID, meeting.Title, string(languages), defaultModality(meeting.Modality), r.now().UnixMilli())
	if err != nil {
		return wrapSQLiteError("ensure meeting", err)
	}
	return nil
}

func (r *SQLiteRepository) LatestSessionByMeeting(ctx context.Context, meetingID string) (*repository.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+`
		 FROM sessions WHERE meeting_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT 1`,
		meetingID)
	s, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapSQLiteError("latest session", err)
	}
	return s, nil
}

func (r *SQLiteRepository) CreateSessionIfAbsent(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, bool, error) {
	now := r.now().UnixMilli()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, meeting_id, status, started_by, started_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (meeting_id) DO NOTHING
		 RETURNING `+sqliteSessionColumns,
		uuid.NewString(), input.MeetingID, string(input.Status), input.StartedBy, input.StartedAt.UnixMilli(), now, now)
	s, err := scanSQLiteSession(row)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, wrapSQLiteError("create session", err)
	}
	existing, err := r.LatestSessionByMeeting(ctx, input.MeetingID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, &repository.PersistenceError{Op: "create session", Code: repository.ErrorCodeUnknown, Err: fmt.Errorf("conflicting session for meeting %s vanished", input.MeetingID)}
	}
	return existing, false, nil
}

func (r *SQLiteRepository) TransitionSession(ctx context.Context, input repository.TransitionSessionInput) (*repository.Session, error) {
	if len(input.From) == 0 {
		return nil, repository.ErrStaleSession
	}
	var startedAt, endedAt any
	if input.StartedAt != nil {
		startedAt = input.StartedAt.UnixMilli()
	}
	if input.EndedAt != nil {
		endedAt = input.EndedAt.UnixMilli()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(input.From)), ", ")
	args := []any{string(input.To), input.StartedBy, startedAt, input.ClearEndedAt, endedAt, r.now().UnixMilli(), input.SessionID}
	for _, s := range statusStrings(input.From) {
		args = append(args, s)
	}
	args = append(args, input.RequireEnded)
	row := r.db.QueryRowContext(ctx,
		`UPDATE sessions SET
			status = ?,
			started_by = COALESCE(NULLIF(?, ''), started_by),
			started_at = COALESCE(?, started_at),
			ended_at = CASE WHEN ? THEN NULL ELSE COALESCE(?, ended_at) END,
			updated_at = ?
		 WHERE id = ? AND status IN (`+placeholders+`)
		   AND (NOT ? OR ended_at IS NOT NULL)
		 RETURNING `+sqliteSessionColumns,
		args...)
	s, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStaleSession
		}
		return nil, wrapSQLiteError("transition session", err)
	}
	return s, nil
}

func (r *SQLiteRepository) MarkSessionEnded(ctx context.Context, sessionID string, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, updated_at = ? WHERE id = ?`,
		endedAt.UnixMilli(), r.now().UnixMilli(), sessionID)
	if err != nil {
		return wrapSQLiteError("mark session ended", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQLiteError("mark session ended", err)
	}
	if n == 0 {
		return repository.ErrStaleSession
	}
	return nil
}

func (r *SQLiteRepository) ReplaceCaptions(ctx context.Context, meetingID string, captions []repository.Caption) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteError("replace captions", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM captions WHERE meeting_id = ?`, meetingID); err != nil {
		return wrapSQLiteError("replace captions", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO captions (meeting_id, seq, speaker, start_ms, end_ms, source_lang, source_text, target_lang, target_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapSQLiteError("replace captions", err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, c := range captions {
		if _, err := stmt.ExecContext(ctx, meetingID, c.Seq, c.Speaker, c.StartMs, c.EndMs, c.SourceLang, c.SourceText, c.TargetLang, c.TargetText); err != nil {
			return wrapSQLiteError("replace captions", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapSQLiteError("replace captions", err)
	}
	return nil
}

func (r *SQLiteRepository) AppendCaption(ctx context.Context, input repository.AppendCaptionInput) (*repository.Caption, error) {
	var lastErr error
	for attempt := 0; attempt < appendCaptionAttempts; attempt++ {
		row := r.db.QueryRowContext(ctx,
			`INSERT INTO captions (meeting_id, seq, speaker, start_ms, end_ms, source_lang, source_text, target_lang, target_text)
			 SELECT ?1, COALESCE(MAX(seq), 0) + 1, ?2, ?3, ?4, ?5, ?6, ?7, ?8
			 FROM captions WHERE meeting_id = ?1
			 RETURNING seq`,
			input.MeetingID, input.Speaker, input.StartMs, input.EndMs, input.SourceLang, input.SourceText, input.TargetLang, input.TargetText)
		var seq int
		err := row.Scan(&seq)
		if err == nil {
			c := captionFromAppend(input, seq)
			return &c, nil
		}
		lastErr = wrapSQLiteError("append caption", err)
		if repository.ErrorCode(lastErr) != repository.ErrorCodeUniqueViolation {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (r *SQLiteRepository) ListCaptionsByMeeting(ctx context.Context, meetingID string) ([]repository.Caption, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT meeting_id, seq, speaker, start_ms, end_ms, source_lang, source_text, target_lang, target_text
		 FROM captions WHERE meeting_id = ? ORDER BY seq ASC`,
		meetingID)
	if err != nil {
		return nil, wrapSQLiteError("list captions", err)
	}
	defer rows.Close()
	var list []repository.Caption
	for rows.Next() {
		var c repository.Caption
		if err := rows.Scan(&c.MeetingID, &c.Seq, &c.Speaker, &c.StartMs, &c.EndMs, &c.SourceLang, &c.SourceText, &c.TargetLang, &c.TargetText); err != nil {
			return nil, wrapSQLiteError("list captions", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLiteError("list captions", err)
	}
	return list, nil
}

func (r *SQLiteRepository) UpsertSummary(ctx context.Context, input repository.UpsertSummaryInput) (*repository.Summary, error) {
	now := r.now().UnixMilli()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO summaries (meeting_id, lang, content, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (meeting_id, lang) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		input.MeetingID, input.Lang, input.Content, now)
	if err != nil {
		return nil, wrapSQLiteError("upsert summary", err)
	}
	return &repository.Summary{
		MeetingID: input.MeetingID,
		Lang:      input.Lang,
		Content:   input.Content,
		UpdatedAt: timeFromUnixMilli(now),
	}, nil
}

func (r *SQLiteRepository) ListSummariesByMeeting(ctx context.Context, meetingID string) ([]repository.Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT meeting_id, lang, content, updated_at FROM summaries WHERE meeting_id = ? ORDER BY lang ASC`,
		meetingID)
	if err != nil {
		return nil, wrapSQLiteError("list summaries", err)
	}
	defer rows.Close()
	var list []repository.Summary
	for rows.Next() {
		var s repository.Summary
		var updatedAt int64
		if err := rows.Scan(&s.MeetingID, &s.Lang, &s.Content, &updatedAt); err != nil {
			return nil, wrapSQLiteError("list summaries", err)
		}
		s.UpdatedAt = timeFromUnixMilli(updatedAt)
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLiteError("list summaries", err)
	}
	return list, nil
}

func scanSQLiteSession(row *sql.Row) (*repository.Session, error) {
	var s repository.Session
	var status string
	var startedAt, createdAt, updatedAt int64
	var endedAt sql.NullInt64
	if err := row.Scan(&s.ID, &s.MeetingID, &status, &s.StartedBy, &startedAt, &endedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Status = repository.SessionStatus(status)
	s.StartedAt = timeFromUnixMilli(startedAt)
	s.CreatedAt = timeFromUnixMilli(createdAt)
	s.UpdatedAt = timeFromUnixMilli(updatedAt)
	if endedAt.Valid {
		t := timeFromUnixMilli(endedAt.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}

func timeFromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func wrapSQLiteError(op string, err error) error {
	code := repository.ErrorCodeUnknown
	var se *sqlite.Error
	if errors.As(err, &se) {
		code = sqliteErrorCode(se)
	}
	return &repository.PersistenceError{Op: op, Code: code, Err: err}
}

func sqliteErrorCode(se *sqlite.Error) string {
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return repository.ErrorCodeUniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return repository.ErrorCodeForeignKeyViolation
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return repository.ErrorCodeNotNullViolation
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE") {
		return repository.ErrorCodeUniqueViolation
	}
	return fmt.Sprintf("SQLITE_%d", se.Code())
}
