package session

import (
	"errors"
	"fmt"

	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/repository"
)

// StatusIdle stands for "no session row yet".
const StatusIdle repository.SessionStatus = ""

var ErrIllegalTransition = errors.New("illegal session transition")

type Path int

const (
	PathLive Path = iota
	PathBatch
)

func (p Path) String() string {
	if p == PathLive {
		return "live"
	}
	return "batch"
}

func (p Path) EntryStatus() repository.SessionStatus {
	if p == PathLive {
		return repository.SessionStatusRecording
	}
	return repository.SessionStatusUploading
}

var transitions = map[repository.SessionStatus][]repository.SessionStatus{
	StatusIdle:                         {repository.SessionStatusRecording, repository.SessionStatusUploading},
	repository.SessionStatusRecording:  {repository.SessionStatusProcessing, repository.SessionStatusUploading},
	repository.SessionStatusUploading:  {repository.SessionStatusProcessing},
	repository.SessionStatusProcessing: {repository.SessionStatusCompleted, repository.SessionStatusFailed},
	repository.SessionStatusFailed:     {repository.SessionStatusUploading, repository.SessionStatusRecording},
}

// CheckTransition reports whether from -> to is a legal edge.
func CheckTransition(from, to repository.SessionStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %q -> %q", ErrIllegalTransition, from, to)
}

// Sources returns every status with a legal edge into to.
func Sources(to repository.SessionStatus) []repository.SessionStatus {
	var out []repository.SessionStatus
	for _, from := range []repository.SessionStatus{
		repository.SessionStatusRecording,
		repository.SessionStatusUploading,
		repository.SessionStatusProcessing,
		repository.SessionStatusCompleted,
		repository.SessionStatusFailed,
	} {
		if CheckTransition(from, to) == nil {
			out = append(out, from)
		}
	}
	return out
}

type Action int

const (
	ActionCreate Action = iota
	ActionResume
	ActionReenter
	ActionReject
)

// Liveness reports whether a streaming connection currently feeds a meeting.
type Liveness int

const (
	// LivenessUnknown is used when no stream tracker is attached, e.g. in a
	// process that does not serve the websocket.
	LivenessUnknown Liveness = iota
	LivenessIdle
	LivenessStreaming
)

type Decision struct {
	Action Action
	// Conflict is set for ActionReject.
	Conflict string
	// RequireEnded makes a re-entry match only a row whose stream has ended.
	RequireEnded bool
}

// Decide applies the start policy to the latest session of a meeting.
// existing is nil when the meeting has none.
func Decide(existing *repository.Session, path Path, live Liveness) Decision {
	if existing == nil {
		return Decision{Action: ActionCreate}
	}
	switch existing.Status {
	case repository.SessionStatusCompleted:
		return Decision{Action: ActionReject, Conflict: apperr.CodeAlreadyRecorded}
	case repository.SessionStatusProcessing, repository.SessionStatusUploading:
		return Decision{Action: ActionReject, Conflict: apperr.CodeInProgress}
	case repository.SessionStatusRecording:
		if path == PathLive {
			return Decision{Action: ActionResume}
		}
		return decideTakeover(existing, live)
	case repository.SessionStatusFailed:
		return Decision{Action: ActionReenter}
	default:
		return Decision{Action: ActionReject, Conflict: apperr.CodeInProgress}
	}
}

// decideTakeover lets an upload replace a RECORDING row only once its stream
// is over: ended explicitly, or abandoned with no connection feeding it.
func decideTakeover(existing *repository.Session, live Liveness) Decision {
	switch {
	case live == LivenessStreaming:
		return Decision{Action: ActionReject, Conflict: apperr.CodeInProgress}
	case existing.EndedAt != nil:
		return Decision{Action: ActionReenter, RequireEnded: true}
	case live == LivenessIdle:
		return Decision{Action: ActionReenter}
	default:
		return Decision{Action: ActionReject, Conflict: apperr.CodeInProgress}
	}
}
