// Package repositorytest provides an in-memory Repository for tests.
package repositorytest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sweetginger/Nyogi/internal/repository"
)

type Memory struct {
	mu        sync.Mutex
	meetings  map[string]repository.Meeting
	sessions  map[string]*repository.Session
	captions  map[string][]repository.Caption
	summaries map[string]map[string]repository.Summary
	nextID    int

	// ReplaceCaptionsErr, when set, fails ReplaceCaptions without touching
	// the stored captions.
	ReplaceCaptionsErr error
	// SummaryErrByLang fails UpsertSummary for the given language.
	SummaryErrByLang map[string]error
	// BeforeTransition runs outside the lock before every TransitionSession.
	BeforeTransition func(input repository.TransitionSessionInput)
}

var _ repository.Repository = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		meetings:  make(map[string]repository.Meeting),
		sessions:  make(map[string]*repository.Session),
		captions:  make(map[string][]repository.Caption),
		summaries: make(map[string]map[string]repository.Summary),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) AddMeeting(id string, languages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings[id] = repository.Meeting{ID: id, Languages: languages, Modality: repository.ModalityInPerson}
}

func (m *Memory) GetMeeting(_ context.Context, meetingID string) (*repository.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok {
		return nil, nil
	}
	meeting.Languages = slices.Clone(meeting.Languages)
	return &meeting, nil
}

func (m *Memory) EnsureMeeting(_ context.Context, meeting repository.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meetings[meeting.ID]; !ok {
		m.meetings[meeting.ID] = meeting
	}
	return nil
}

// PutSession stores s as the session of its meeting.
func (m *Memory) PutSession(s repository.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.sessions[s.MeetingID] = &cp
}

// SessionCount returns the number of session rows across all meetings.
func (m *Memory) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Memory) LatestSessionByMeeting(_ context.Context, meetingID string) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[meetingID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) CreateSessionIfAbsent(_ context.Context, input repository.CreateSessionInput) (*repository.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[input.MeetingID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	if _, ok := m.meetings[input.MeetingID]; !ok {
		return nil, false, &repository.PersistenceError{Op: "create session", Code: repository.ErrorCodeForeignKeyViolation, Err: fmt.Errorf("meeting %s does not exist", input.MeetingID)}
	}
	m.nextID++
	now := time.Now()
	s := &repository.Session{
		ID:        fmt.Sprintf("session-%d", m.nextID),
		MeetingID: input.MeetingID,
		Status:    input.Status,
		StartedBy: input.StartedBy,
		StartedAt: input.StartedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[input.MeetingID] = s
	cp := *s
	return &cp, true, nil
}

func (m *Memory) TransitionSession(_ context.Context, input repository.TransitionSessionInput) (*repository.Session, error) {
	if m.BeforeTransition != nil {
		m.BeforeTransition(input)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessionByIDLocked(input.SessionID)
	if s == nil || !slices.Contains(input.From, s.Status) {
		return nil, repository.ErrStaleSession
	}
	if input.RequireEnded && s.EndedAt == nil {
		return nil, repository.ErrStaleSession
	}
	s.Status = input.To
	if input.StartedBy != "" {
		s.StartedBy = input.StartedBy
	}
	if input.StartedAt != nil {
		s.StartedAt = *input.StartedAt
	}
	switch {
	case input.ClearEndedAt:
		s.EndedAt = nil
	case input.EndedAt != nil:
		t := *input.EndedAt
		s.EndedAt = &t
	}
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *Memory) MarkSessionEnded(_ context.Context, sessionID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessionByIDLocked(sessionID)
	if s == nil {
		return repository.ErrStaleSession
	}
	s.EndedAt = &endedAt
	return nil
}

// Session returns a copy of the session with the given id.
func (m *Memory) Session(sessionID string) (repository.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessionByIDLocked(sessionID)
	if s == nil {
		return repository.Session{}, false
	}
	return *s, true
}

func (m *Memory) sessionByIDLocked(sessionID string) *repository.Session {
	for _, s := range m.sessions {
		if s.ID == sessionID {
			return s
		}
	}
	return nil
}

func (m *Memory) ReplaceCaptions(_ context.Context, meetingID string, captions []repository.Caption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReplaceCaptionsErr != nil {
		return m.ReplaceCaptionsErr
	}
	out := make([]repository.Caption, 0, len(captions))
	for _, c := range captions {
		c.MeetingID = meetingID
		out = append(out, c)
	}
	m.captions[meetingID] = out
	return nil
}

func (m *Memory) AppendCaption(_ context.Context, input repository.AppendCaptionInput) (*repository.Caption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := repository.Caption{
		MeetingID:  input.MeetingID,
		Seq:        len(m.captions[input.MeetingID]) + 1,
		Speaker:    input.Speaker,
		StartMs:    input.StartMs,
		EndMs:      input.EndMs,
		SourceLang: input.SourceLang,
		SourceText: input.SourceText,
		TargetLang: input.TargetLang,
		TargetText: input.TargetText,
	}
	m.captions[input.MeetingID] = append(m.captions[input.MeetingID], c)
	return &c, nil
}

func (m *Memory) ListCaptionsByMeeting(_ context.Context, meetingID string) ([]repository.Caption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.captions[meetingID]), nil
}

func (m *Memory) UpsertSummary(_ context.Context, input repository.UpsertSummaryInput) (*repository.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SummaryErrByLang[input.Lang]; err != nil {
		return nil, err
	}
	if m.summaries[input.MeetingID] == nil {
		m.summaries[input.MeetingID] = make(map[string]repository.Summary)
	}
	s := repository.Summary{MeetingID: input.MeetingID, Lang: input.Lang, Content: input.Content, UpdatedAt: time.Now()}
	m.summaries[input.MeetingID][input.Lang] = s
	return &s, nil
}

func (m *Memory) ListSummariesByMeeting(_ context.Context, meetingID string) ([]repository.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]repository.Summary, 0, len(m.summaries[meetingID]))
	for _, s := range m.summaries[meetingID] {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Lang < list[j].Lang })
	return list, nil
}
