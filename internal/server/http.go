package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/pipeline"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/session"
)

const (
	multipartMemoryBytes = 32 << 20
	userIDHeader         = "X-User-ID"
	codeInternal         = "INTERNAL"
)

type uploadResponse struct {
	SessionID     string `json:"sessionId"`
	SentenceCount int    `json:"sentenceCount"`
}

type sessionResponse struct {
	SessionID string     `json:"sessionId"`
	MeetingID string     `json:"meetingId"`
	Status    string     `json:"status"`
	StartedBy string     `json:"startedBy"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
}

type errorDetails struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorResponse struct {
	Error     string        `json:"error"`
	Message   string        `json:"message"`
	SessionID string        `json:"sessionId,omitempty"`
	Status    string        `json:"status,omitempty"`
	Details   *errorDetails `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	if r.ContentLength > s.cfg.MaxUploadBytes {
		writeUploadTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeUploadTooLarge(w)
			return
		}
		writeAppError(w, r, &apperr.ValidationError{Field: "audio", Message: "multipart form with an audio file is required"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeAppError(w, r, &apperr.ValidationError{Field: "audio", Message: "is required"})
		return
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(file)
	if err != nil {
		writeAppError(w, r, &apperr.ValidationError{Field: "audio", Message: "could not be read"})
		return
	}

	startedBy := strings.TrimSpace(r.FormValue("startedBy"))
	if startedBy == "" {
		startedBy = strings.TrimSpace(r.Header.Get(userIDHeader))
	}

	res, err := s.batch.Process(r.Context(), pipeline.UploadInput{
		MeetingID: meetingID,
		StartedBy: startedBy,
		Audio:     data,
		Filename:  header.Filename,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{SessionID: res.SessionID, SentenceCount: res.SentenceCount})
}

func (s *Server) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	sess, err := s.repo.LatestSessionByMeeting(r.Context(), meetingID)
	if err != nil {
		writeAppError(w, r, &apperr.PersistenceError{Code: repository.ErrorCode(err), Err: err})
		return
	}
	if sess == nil {
		writeAppError(w, r, &apperr.NotFoundError{Resource: "session for meeting", ID: meetingID})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		MeetingID: sess.MeetingID,
		Status:    string(sess.Status),
		StartedBy: sess.StartedBy,
		StartedAt: sess.StartedAt,
		EndedAt:   sess.EndedAt,
	})
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation    *apperr.ValidationError
		notFound      *apperr.NotFoundError
		conflict      *apperr.ConflictError
		transcription *apperr.TranscriptionError
		persistence   *apperr.PersistenceError
		canceled      *apperr.CanceledError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apperr.CodeValidation, Message: validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: apperr.CodeNotFound, Message: notFound.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     conflict.Code,
			Message:   conflictMessage(conflict.Code),
			SessionID: conflict.SessionID,
			Status:    conflict.Status,
		})
	case errors.As(err, &transcription):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:     apperr.CodeTranscriptionFailed,
			Message:   "transcription failed",
			SessionID: transcription.SessionID,
			Details:   &errorDetails{Message: transcription.Err.Error(), Code: transcription.Code},
		})
	case errors.As(err, &persistence):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     apperr.CodePersistenceFailed,
			Message:   "failed to store results",
			SessionID: persistence.SessionID,
			Details:   &errorDetails{Message: persistence.Err.Error(), Code: persistence.Code},
		})
	case errors.As(err, &canceled):
		slog.Info("request canceled by client", "path", r.URL.Path, "session_id", canceled.SessionID)
	case errors.Is(err, session.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: apperr.CodeInProgress, Message: conflictMessage(apperr.CodeInProgress)})
	default:
		slog.Error("unhandled request error", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: codeInternal, Message: "internal server error"})
	}
}

func writeUploadTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: apperr.CodeValidation, Message: "audio exceeds the upload limit"})
}

func conflictMessage(code string) string {
	if code == apperr.CodeAlreadyRecorded {
		return "meeting already has a completed transcript"
	}
	return "a transcription for this meeting is already in progress"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
