package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/repository"
)

// A lost create or compare-and-swap re-reads and re-decides; after this many
// rounds the caller is told the meeting is busy.
const beginAttempts = 3

type BeginInput struct {
	MeetingID string
	StartedBy string
	Path      Path
}

// StreamTracker reports whether a live connection currently owns a meeting.
type StreamTracker interface {
	Streaming(meetingID string) bool
}

type Machine struct {
	repo    repository.SessionRepository
	now     func() time.Time
	tracker StreamTracker
}

func NewMachine(repo repository.SessionRepository) *Machine {
	return &Machine{repo: repo, now: time.Now}
}

// SetStreamTracker attaches the live connection registry. It must be called
// before the machine is shared.
func (m *Machine) SetStreamTracker(t StreamTracker) {
	m.tracker = t
}

func (m *Machine) liveness(meetingID string) Liveness {
	if m.tracker == nil {
		return LivenessUnknown
	}
	if m.tracker.Streaming(meetingID) {
		return LivenessStreaming
	}
	return LivenessIdle
}

// Begin guards and opens a session attempt for a meeting. It either returns a
// session in the path's entry status or an *apperr.ConflictError naming the
// session that blocked it.
func (m *Machine) Begin(ctx context.Context, input BeginInput) (*repository.Session, error) {
	var latest *repository.Session
	for attempt := 0; attempt < beginAttempts; attempt++ {
		existing, err := m.repo.LatestSessionByMeeting(ctx, input.MeetingID)
		if err != nil {
			return nil, persistenceError("", err)
		}
		latest = existing

		decision := Decide(existing, input.Path, m.liveness(input.MeetingID))
		switch decision.Action {
		case ActionReject:
			slog.Info("session start rejected", "meeting_id", input.MeetingID, "session_id", existing.ID, "status", existing.Status, "code", decision.Conflict, "path", input.Path.String())
			return nil, conflictError(decision.Conflict, existing)

		case ActionResume:
			if existing.EndedAt == nil {
				slog.Info("resuming recording session", "meeting_id", input.MeetingID, "session_id", existing.ID)
				return existing, nil
			}
			// Reopen the stream so an upload cannot take the row over.
			s, err := m.repo.TransitionSession(ctx, repository.TransitionSessionInput{
				SessionID:    existing.ID,
				From:         []repository.SessionStatus{repository.SessionStatusRecording},
				To:           repository.SessionStatusRecording,
				ClearEndedAt: true,
			})
			if errors.Is(err, repository.ErrStaleSession) {
				continue
			}
			if err != nil {
				return nil, persistenceError(existing.ID, err)
			}
			slog.Info("reopened ended recording session", "meeting_id", input.MeetingID, "session_id", s.ID)
			return s, nil

		case ActionCreate:
			s, created, err := m.repo.CreateSessionIfAbsent(ctx, repository.CreateSessionInput{
				MeetingID: input.MeetingID,
				Status:    input.Path.EntryStatus(),
				StartedBy: input.StartedBy,
				StartedAt: m.now(),
			})
			if err != nil {
				return nil, persistenceError("", err)
			}
			if created {
				slog.Info("created session", "meeting_id", input.MeetingID, "session_id", s.ID, "status", s.Status, "path", input.Path.String())
				return s, nil
			}
			slog.Info("lost session create race; re-reading", "meeting_id", input.MeetingID, "winner_session_id", s.ID)

		case ActionReenter:
			entry := input.Path.EntryStatus()
			if err := CheckTransition(existing.Status, entry); err != nil {
				return nil, err
			}
			startedAt := m.now()
			s, err := m.repo.TransitionSession(ctx, repository.TransitionSessionInput{
				SessionID:    existing.ID,
				From:         []repository.SessionStatus{existing.Status},
				To:           entry,
				StartedBy:    input.StartedBy,
				StartedAt:    &startedAt,
				ClearEndedAt: true,
				RequireEnded: decision.RequireEnded,
			})
			if errors.Is(err, repository.ErrStaleSession) {
				slog.Info("lost session re-entry race; re-reading", "meeting_id", input.MeetingID, "session_id", existing.ID)
				continue
			}
			if err != nil {
				return nil, persistenceError(existing.ID, err)
			}
			slog.Info("re-entered session", "meeting_id", input.MeetingID, "session_id", s.ID, "from", existing.Status, "to", s.Status)
			return s, nil
		}
	}

	if latest == nil {
		return nil, &apperr.ConflictError{Code: apperr.CodeInProgress}
	}
	return nil, conflictError(apperr.CodeInProgress, latest)
}

// MarkProcessing moves an entry-state session to PROCESSING.
func (m *Machine) MarkProcessing(ctx context.Context, s *repository.Session) (*repository.Session, error) {
	return m.transition(ctx, s.ID, repository.SessionStatusProcessing, nil)
}

func (m *Machine) Complete(ctx context.Context, sessionID string) (*repository.Session, error) {
	endedAt := m.now()
	return m.transition(ctx, sessionID, repository.SessionStatusCompleted, &endedAt)
}

// Fail moves a PROCESSING session to FAILED and stamps its end time.
func (m *Machine) Fail(ctx context.Context, sessionID string) (*repository.Session, error) {
	endedAt := m.now()
	return m.transition(ctx, sessionID, repository.SessionStatusFailed, &endedAt)
}

// MarkEnded records the end of a live stream without changing its status, so
// a later upload can take the row over.
func (m *Machine) MarkEnded(ctx context.Context, sessionID string) error {
	if err := m.repo.MarkSessionEnded(ctx, sessionID, m.now()); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return &apperr.NotFoundError{Resource: "session", ID: sessionID}
		}
		return persistenceError(sessionID, err)
	}
	return nil
}

func (m *Machine) transition(ctx context.Context, sessionID string, to repository.SessionStatus, endedAt *time.Time) (*repository.Session, error) {
	s, err := m.repo.TransitionSession(ctx, repository.TransitionSessionInput{
		SessionID: sessionID,
		From:      Sources(to),
		To:        to,
		EndedAt:   endedAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return nil, fmt.Errorf("%w: session %s cannot move to %s", ErrIllegalTransition, sessionID, to)
		}
		return nil, persistenceError(sessionID, err)
	}
	slog.Info("session status changed", "session_id", sessionID, "status", s.Status)
	return s, nil
}

func conflictError(code string, s *repository.Session) error {
	return &apperr.ConflictError{Code: code, SessionID: s.ID, Status: string(s.Status)}
}

func persistenceError(sessionID string, err error) error {
	return &apperr.PersistenceError{SessionID: sessionID, Code: repository.ErrorCode(err), Err: err}
}
