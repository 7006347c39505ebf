package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStaleSession is returned by TransitionSession when the row is no longer
// in any of the expected source states.
var ErrStaleSession = errors.New("session state changed concurrently")

type CreateSessionInput struct {
	MeetingID string
	Status    SessionStatus
	StartedBy string
	StartedAt time.Time
}

// TransitionSessionInput describes a compare-and-swap on a session's status.
// StartedAt and StartedBy are overwritten when set. ClearEndedAt wins over
// EndedAt. RequireEnded additionally matches only rows whose ended_at is set.
type TransitionSessionInput struct {
	SessionID    string
	From         []SessionStatus
	To           SessionStatus
	StartedBy    string
	StartedAt    *time.Time
	EndedAt      *time.Time
	ClearEndedAt bool
	RequireEnded bool
}

type AppendCaptionInput struct {
	MeetingID  string
	Speaker    string
	StartMs    int64
	EndMs      int64
	SourceLang string
	SourceText string
	TargetLang string
	TargetText string
}

type UpsertSummaryInput struct {
	MeetingID string
	Lang      string
	Content   string
}

type MeetingRepository interface {
	GetMeeting(ctx context.Context, meetingID string) (*Meeting, error)
	EnsureMeeting(ctx context.Context, meeting Meeting) error
}

type SessionRepository interface {
	LatestSessionByMeeting(ctx context.Context, meetingID string) (*Session, error)
	// CreateSessionIfAbsent inserts a session unless the meeting already has
	// one. created is false when another row won, in which case that row is
	// returned.
	CreateSessionIfAbsent(ctx context.Context, input CreateSessionInput) (session *Session, created bool, err error)
	TransitionSession(ctx context.Context, input TransitionSessionInput) (*Session, error)
	MarkSessionEnded(ctx context.Context, sessionID string, endedAt time.Time) error
}

type CaptionRepository interface {
	// ReplaceCaptions deletes every caption of the meeting and inserts the
	// given set in one transaction.
	ReplaceCaptions(ctx context.Context, meetingID string, captions []Caption) error
	AppendCaption(ctx context.Context, input AppendCaptionInput) (*Caption, error)
	ListCaptionsByMeeting(ctx context.Context, meetingID string) ([]Caption, error)
}

type SummaryRepository interface {
	UpsertSummary(ctx context.Context, input UpsertSummaryInput) (*Summary, error)
	ListSummariesByMeeting(ctx context.Context, meetingID string) ([]Summary, error)
}

type Repository interface {
	MeetingRepository
	SessionRepository
	CaptionRepository
	SummaryRepository
	Close() error
}

const (
	ErrorCodeUniqueViolation     = "UNIQUE_VIOLATION"
	ErrorCodeForeignKeyViolation = "FOREIGN_KEY_VIOLATION"
	ErrorCodeNotNullViolation    = "NOT_NULL_VIOLATION"
	ErrorCodeUnknown             = "UNKNOWN"
)

// PersistenceError wraps a driver failure with a machine-readable code.
type PersistenceError struct {
	Op   string
	Code string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Code, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorCode extracts the persistence code from err, or ErrorCodeUnknown.
func ErrorCode(err error) string {
	var pe *PersistenceError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return ErrorCodeUnknown
}
