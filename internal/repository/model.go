package repository

import "time"

type SessionStatus string

const (
	SessionStatusRecording  SessionStatus = "RECORDING"
	SessionStatusUploading  SessionStatus = "UPLOADING"
	SessionStatusProcessing SessionStatus = "PROCESSING"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusFailed     SessionStatus = "FAILED"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusRecording, SessionStatusUploading, SessionStatusProcessing, SessionStatusCompleted, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// Meeting modalities.
const (
	ModalityInPerson = "in_person"
	ModalityRemote   = "remote"
)

type Meeting struct {
	ID        string
	Title     string
	Languages []string
	Modality  string
	CreatedAt time.Time
}

type Session struct {
	ID        string
	MeetingID string
	Status    SessionStatus
	StartedBy string
	StartedAt time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Caption struct {
	MeetingID  string
	Seq        int
	Speaker    string
	StartMs    int64
	EndMs      int64
	SourceLang string
	SourceText string
	TargetLang string
	TargetText string
}

type Summary struct {
	MeetingID string
	Lang      string
	Content   string
	UpdatedAt time.Time
}
