package session

import (
	"errors"
	"testing"
	"time"

	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/repository"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to repository.SessionStatus
		ok       bool
	}{
		{StatusIdle, repository.SessionStatusRecording, true},
		{StatusIdle, repository.SessionStatusUploading, true},
		{StatusIdle, repository.SessionStatusProcessing, false},
		{repository.SessionStatusRecording, repository.SessionStatusProcessing, true},
		{repository.SessionStatusRecording, repository.SessionStatusUploading, true},
		{repository.SessionStatusUploading, repository.SessionStatusProcessing, true},
		{repository.SessionStatusUploading, repository.SessionStatusCompleted, false},
		{repository.SessionStatusProcessing, repository.SessionStatusCompleted, true},
		{repository.SessionStatusProcessing, repository.SessionStatusFailed, true},
		{repository.SessionStatusProcessing, repository.SessionStatusUploading, false},
		{repository.SessionStatusFailed, repository.SessionStatusUploading, true},
		{repository.SessionStatusFailed, repository.SessionStatusRecording, true},
		{repository.SessionStatusFailed, repository.SessionStatusProcessing, false},
		{repository.SessionStatusCompleted, repository.SessionStatusUploading, false},
		{repository.SessionStatusCompleted, repository.SessionStatusFailed, false},
	}
	for _, tt := range tests {
		err := CheckTransition(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Fatalf("%q -> %q: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok && !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%q -> %q: expected illegal transition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestSources(t *testing.T) {
	got := Sources(repository.SessionStatusFailed)
	if len(got) != 1 || got[0] != repository.SessionStatusProcessing {
		t.Fatalf("unexpected sources for FAILED: %v", got)
	}
	got = Sources(repository.SessionStatusProcessing)
	if len(got) != 2 {
		t.Fatalf("unexpected sources for PROCESSING: %v", got)
	}
}

func TestDecide(t *testing.T) {
	ended := time.Now()
	recording := &repository.Session{Status: repository.SessionStatusRecording}
	endedRecording := &repository.Session{Status: repository.SessionStatusRecording, EndedAt: &ended}
	tests := []struct {
		name         string
		existing     *repository.Session
		path         Path
		live         Liveness
		action       Action
		conflict     string
		requireEnded bool
	}{
		{"none batch", nil, PathBatch, LivenessUnknown, ActionCreate, "", false},
		{"none live", nil, PathLive, LivenessStreaming, ActionCreate, "", false},
		{"completed", &repository.Session{Status: repository.SessionStatusCompleted}, PathBatch, LivenessIdle, ActionReject, apperr.CodeAlreadyRecorded, false},
		{"completed live", &repository.Session{Status: repository.SessionStatusCompleted}, PathLive, LivenessStreaming, ActionReject, apperr.CodeAlreadyRecorded, false},
		{"processing", &repository.Session{Status: repository.SessionStatusProcessing}, PathBatch, LivenessIdle, ActionReject, apperr.CodeInProgress, false},
		{"uploading", &repository.Session{Status: repository.SessionStatusUploading}, PathLive, LivenessStreaming, ActionReject, apperr.CodeInProgress, false},
		{"recording batch while streaming", recording, PathBatch, LivenessStreaming, ActionReject, apperr.CodeInProgress, false},
		{"ended recording batch while streaming", endedRecording, PathBatch, LivenessStreaming, ActionReject, apperr.CodeInProgress, false},
		{"recording batch unknown liveness", recording, PathBatch, LivenessUnknown, ActionReject, apperr.CodeInProgress, false},
		{"ended recording batch takeover", endedRecording, PathBatch, LivenessUnknown, ActionReenter, "", true},
		{"abandoned recording batch takeover", recording, PathBatch, LivenessIdle, ActionReenter, "", false},
		{"recording live resume", recording, PathLive, LivenessStreaming, ActionResume, "", false},
		{"failed retry", &repository.Session{Status: repository.SessionStatusFailed}, PathBatch, LivenessUnknown, ActionReenter, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.existing, tt.path, tt.live)
			if d.Action != tt.action || d.Conflict != tt.conflict || d.RequireEnded != tt.requireEnded {
				t.Fatalf("unexpected decision: %+v", d)
			}
		})
	}
}

func TestPathEntryStatus(t *testing.T) {
	if PathLive.EntryStatus() != repository.SessionStatusRecording {
		t.Fatal("live path must enter RECORDING")
	}
	if PathBatch.EntryStatus() != repository.SessionStatusUploading {
		t.Fatal("batch path must enter UPLOADING")
	}
}
