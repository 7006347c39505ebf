package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sweetginger/Nyogi/internal/repository"
)

const sessionColumns = `id::text, meeting_id, status::text, started_by, started_at, ended_at, created_at, updated_at`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) GetMeeting(ctx context.Context, meetingID string) (*repository.Meeting, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, languages, modality, created_at FROM meetings WHERE id = $1`,
		meetingID)
	var m repository.Meeting
	if err := row.Scan(&m.ID, &m.Title, &m.Languages, &m.Modality, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapPgError("get meeting", err)
	}
	return &m, nil
}

func (r *PostgresRepository) EnsureMeeting(ctx context.Context, meeting repository.Meeting) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO meetings (id, title, languages, modality)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		meeting.ID, meeting.Title, meeting.Languages, defaultModality(meeting.Modality))
	if err != nil {
		return wrapPgError("ensure meeting", err)
	}
	return nil
}

func (r *PostgresRepository) LatestSessionByMeeting(ctx context.Context, meetingID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions WHERE meeting_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		meetingID)
	s, err := scanPgSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapPgError("latest session", err)
	}
	return s, nil
}

func (r *PostgresRepository) CreateSessionIfAbsent(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, bool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (meeting_id, status, started_by, started_at)
		 VALUES ($1, $2::session_status, $3, $4)
		 ON CONFLICT (meeting_id) DO NOTHING
		 RETURNING `+sessionColumns,
		input.MeetingID, string(input.Status), input.StartedBy, input.StartedAt)
	s, err := scanPgSession(row)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrapPgError("create session", err)
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

func (r *PostgresRepository) TransitionSession(ctx context.Context, input repository.TransitionSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE sessions SET
			status = $2::session_status,
			started_by = COALESCE(NULLIF($3::text, ''), started_by),
			started_at = COALESCE($4::timestamptz, started_at),
			ended_at = CASE WHEN $5::boolean THEN NULL ELSE COALESCE($6::timestamptz, ended_at) END,
			updated_at = NOW()
		 WHERE id = $1::uuid AND status::text = ANY($7::text[])
		   AND (NOT $8::boolean OR ended_at IS NOT NULL)
		 RETURNING `+sessionColumns,
		input.SessionID, string(input.To), input.StartedBy, input.StartedAt, input.ClearEndedAt, input.EndedAt, statusStrings(input.From), input.RequireEnded)
	s, err := scanPgSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrStaleSession
		}
		return nil, wrapPgError("transition session", err)
	}
	return s, nil
}

func (r *PostgresRepository) MarkSessionEnded(ctx context.Context, sessionID string, endedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = $2, updated_at = NOW() WHERE id = $1::uuid`,
		sessionID, endedAt)
	if err != nil {
		return wrapPgError("mark session ended", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrStaleSession
	}
	return nil
}

func (r *PostgresRepository) ReplaceCaptions(ctx context.Context, meetingID string, captions []repository.Caption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrapPgError("replace captions", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM captions WHERE meeting_id = $1`, meetingID); err != nil {
		return wrapPgError("replace captions", err)
	}
	rows := make([][]any, 0, len(captions))
	for _, c := range captions {
		rows = append(rows, []any{meetingID, c.Seq, c.Speaker, c.StartMs, c.EndMs, c.SourceLang, c.SourceText, c.TargetLang, c.TargetText})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"captions"},
			[]string{"meeting_id", "seq", "speaker", "start_ms", "end_ms", "source_lang", "source_text", "target_lang", "target_text"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return wrapPgError("replace captions", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapPgError("replace captions", err)
	}
	return nil
}

func (r *PostgresRepository) AppendCaption(ctx context.Context, input repository.AppendCaptionInput) (*repository.Caption, error) {
	var lastErr error
	for attempt := 0; attempt < appendCaptionAttempts; attempt++ {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO captions (meeting_id, seq, speaker, start_ms, end_ms, source_lang, source_text, target_lang, target_text)
			 SELECT $1::text, COALESCE(MAX(seq), 0) + 1, $2::text, $3::bigint, $4::bigint, $5::text, $6::text, $7::text, $8::text
			 FROM captions WHERE meeting_id = $1::text
			 RETURNING seq`,
			input.MeetingID, input.Speaker, input.StartMs, input.EndMs, input.SourceLang, input.SourceText, input.TargetLang, input.TargetText)
		var seq int
		err := row.Scan(&seq)
		if err == nil {
			c := captionFromAppend(input, seq)
			return &c, nil
		}
		lastErr = wrapPgError("append caption", err)
		if repository.ErrorCode(lastErr) != repository.ErrorCodeUniqueViolation {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (r *PostgresRepository) ListCaptionsByMeeting(ctx context.Context, meetingID string) ([]repository.Caption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT meeting_id, seq, speaker, start_ms, end_ms, source_lang, source_text, target_lang, target_text
		 FROM captions WHERE meeting_id = $1 ORDER BY seq ASC`,
		meetingID)
	if err != nil {
		return nil, wrapPgError("list captions", err)
	}
	defer rows.Close()
	var list []repository.Caption
	for rows.Next() {
		var c repository.Caption
		if err := rows.Scan(&c.MeetingID, &c.Seq, &c.Speaker, &c.StartMs, &c.EndMs, &c.SourceLang, &c.SourceText, &c.TargetLang, &c.TargetText); err != nil {
			return nil, wrapPgError("list captions", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("list captions", err)
	}
	return list, nil
}

func (r *PostgresRepository) UpsertSummary(ctx context.Context, input repository.UpsertSummaryInput) (*repository.Summary, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO summaries (meeting_id, lang, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (meeting_id, lang) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
		 RETURNING meeting_id, lang, content, updated_at`,
		input.MeetingID, input.Lang, input.Content)
	var s repository.Summary
	if err := row.Scan(&s.MeetingID, &s.Lang, &s.Content, &s.UpdatedAt); err != nil {
		return nil, wrapPgError("upsert summary", err)
	}
	return &s, nil
}

func (r *PostgresRepository) ListSummariesByMeeting(ctx context.Context, meetingID string) ([]repository.Summary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT meeting_id, lang, content, updated_at FROM summaries WHERE meeting_id = $1 ORDER BY lang ASC`,
		meetingID)
	if err != nil {
		return nil, wrapPgError("list summaries", err)
	}
	defer rows.Close()
	var list []repository.Summary
	for rows.Next() {
		var s repository.Summary
		if err := rows.Scan(&s.MeetingID, &s.Lang, &s.Content, &s.UpdatedAt); err != nil {
			return nil, wrapPgError("list summaries", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("list summaries", err)
	}
	return list, nil
}

func scanPgSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var status string
	var endedAt *time.Time
	if err := row.Scan(&s.ID, &s.MeetingID, &status, &s.StartedBy, &s.StartedAt, &endedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = repository.SessionStatus(status)
	s.EndedAt = endedAt
	return &s, nil
}

func wrapPgError(op string, err error) error {
	code := repository.ErrorCodeUnknown
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code = pgErrorCode(pgErr.Code)
	}
	return &repository.PersistenceError{Op: op, Code: code, Err: err}
}

func pgErrorCode(sqlState string) string {
	switch sqlState {
	case "23505":
		return repository.ErrorCodeUniqueViolation
	case "23503":
		return repository.ErrorCodeForeignKeyViolation
	case "23502":
		return repository.ErrorCodeNotNullViolation
	default:
		return sqlState
	}
}
