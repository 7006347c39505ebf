package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/session"
	"github.com/sweetginger/Nyogi/internal/transcriber"
	"github.com/sweetginger/Nyogi/internal/translator"
	"golang.org/x/sync/errgroup"
)

// DefaultSpeaker is the placeholder speaker tag; speakers are not diarized.
const DefaultSpeaker = "S1"

type Config struct {
	TranscribeTimeout time.Duration
	CallTimeout       time.Duration
	Concurrency       int
	// DefaultDurationMs is spread evenly over the sentences when the backend
	// returns no segment timings.
	DefaultDurationMs         int64
	FailSessionOnPersistError bool
}

type UploadInput struct {
	MeetingID string
	StartedBy string
	Audio     []byte
	Filename  string
}

type Result struct {
	SessionID     string
	SentenceCount int
}

type Pipeline struct {
	repo        repository.Repository
	machine     *session.Machine
	transcriber transcriber.Transcriber
	translator  translator.Translator
	summarizer  translator.Summarizer
	notifier    Notifier
	cfg         Config
	notifyWG    sync.WaitGroup
}

func New(repo repository.Repository, machine *session.Machine, tr transcriber.Transcriber, tl translator.Translator, sm translator.Summarizer, notifier Notifier, cfg Config) *Pipeline {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		repo:        repo,
		machine:     machine,
		transcriber: tr,
		translator:  tl,
		summarizer:  sm,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// Process runs one batch attempt for a complete recording. ctx bounds the
// whole run; when it ends early the session is demoted to FAILED.
func (p *Pipeline) Process(ctx context.Context, input UploadInput) (Result, error) {
	if err := validateUpload(input); err != nil {
		return Result{}, err
	}
	meeting, err := p.repo.GetMeeting(ctx, input.MeetingID)
	if err != nil {
		return Result{}, &apperr.PersistenceError{Code: repository.ErrorCode(err), Err: err}
	}
	if meeting == nil {
		return Result{}, &apperr.NotFoundError{Resource: "meeting", ID: input.MeetingID}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &apperr.CanceledError{Err: err}
	}

	// State changes must land even if the caller goes away mid-write.
	stateCtx := context.WithoutCancel(ctx)
	s, err := p.machine.Begin(stateCtx, session.BeginInput{
		MeetingID: input.MeetingID,
		StartedBy: input.StartedBy,
		Path:      session.PathBatch,
	})
	if err != nil {
		return Result{}, err
	}
	s, err = p.machine.MarkProcessing(stateCtx, s)
	if err != nil {
		return Result{}, err
	}
	log := slog.With("meeting_id", meeting.ID, "session_id", s.ID)
	log.Info("batch transcription started", "audio_bytes", len(input.Audio), "filename", input.Filename)

	tctx, cancel := context.WithTimeout(ctx, p.cfg.TranscribeTimeout)
	res, err := p.transcriber.Transcribe(tctx, input.Audio, input.Filename)
	cancel()
	if err != nil {
		p.fail(stateCtx, s.ID)
		if ctx.Err() != nil {
			return Result{}, &apperr.CanceledError{SessionID: s.ID, Err: ctx.Err()}
		}
		log.Error("transcription failed", "error", err)
		return Result{}, &apperr.TranscriptionError{SessionID: s.ID, Code: transcriptionCode(err), Err: err}
	}

	sentences := SplitSentences(res.Text)
	captions := p.buildCaptions(ctx, meeting.ID, res, sentences)
	if err := ctx.Err(); err != nil {
		p.fail(stateCtx, s.ID)
		return Result{}, &apperr.CanceledError{SessionID: s.ID, Err: err}
	}

	if err := p.repo.ReplaceCaptions(ctx, meeting.ID, captions); err != nil {
		canceled := ctx.Err() != nil
		if canceled || p.cfg.FailSessionOnPersistError {
			p.fail(stateCtx, s.ID)
		}
		if canceled {
			return Result{}, &apperr.CanceledError{SessionID: s.ID, Err: ctx.Err()}
		}
		log.Error("failed to replace captions", "error", err, "code", repository.ErrorCode(err))
		return Result{}, &apperr.PersistenceError{SessionID: s.ID, Code: repository.ErrorCode(err), Err: err}
	}
	log.Info("captions replaced", "count", len(captions))

	summaries := p.summarize(ctx, meeting, res.Text)

	completed, err := p.machine.Complete(stateCtx, s.ID)
	if err != nil {
		return Result{}, err
	}
	log.Info("batch transcription completed", "sentences", len(sentences), "summaries", len(summaries))

	done := Completion{Meeting: *meeting, Session: *completed, Captions: captions, Summaries: summaries, Text: res.Text}
	p.notifyWG.Go(func() {
		if err := p.notifier.NotifyCompleted(stateCtx, done); err != nil {
			logNotifyError(done, err)
		}
	})

	return Result{SessionID: s.ID, SentenceCount: len(sentences)}, nil
}

// WaitNotifications blocks until every pending completion notice is sent.
func (p *Pipeline) WaitNotifications() {
	p.notifyWG.Wait()
}

func validateUpload(input UploadInput) error {
	switch {
	case strings.TrimSpace(input.MeetingID) == "":
		return &apperr.ValidationError{Field: "meetingId", Message: "is required"}
	case strings.TrimSpace(input.StartedBy) == "":
		return &apperr.ValidationError{Field: "startedBy", Message: "is required"}
	case len(input.Audio) == 0:
		return &apperr.ValidationError{Field: "audio", Message: "is empty"}
	}
	return nil
}

func transcriptionCode(err error) string {
	if code := apperr.BackendCode(err); code != "" {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DEADLINE_EXCEEDED"
	}
	return ""
}

// buildCaptions translates every sentence concurrently. A failed translation
// falls back to the source text and never affects its siblings.
func (p *Pipeline) buildCaptions(ctx context.Context, meetingID string, res transcriber.Result, sentences []string) []repository.Caption {
	captions := make([]repository.Caption, len(sentences))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, sentence := range sentences {
		g.Go(func() error {
			startMs, endMs := sentenceTiming(i, len(sentences), res.Segments, p.cfg.DefaultDurationMs)
			src := ResolveLanguage(sentence, res.Language)
			tgt := TargetLanguage(src)
			captions[i] = repository.Caption{
				MeetingID:  meetingID,
				Seq:        i + 1,
				Speaker:    DefaultSpeaker,
				StartMs:    startMs,
				EndMs:      endMs,
				SourceLang: src,
				SourceText: sentence,
				TargetLang: tgt,
				TargetText: p.translate(ctx, sentence, src, tgt),
			}
			return nil
		})
	}
	_ = g.Wait()
	return captions
}

func (p *Pipeline) translate(ctx context.Context, text, src, tgt string) string {
	if src == tgt {
		return text
	}
	if ctx.Err() != nil {
		return text
	}
	cctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	out, err := p.translator.Translate(cctx, text, src, tgt)
	if err != nil {
		slog.Warn("translation failed; using source text", "source_lang", src, "target_lang", tgt, "error", err)
		return text
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}

// sentenceTiming returns the range of the i-th of n sentences. Backend
// segments are matched by index, the last one covering any overflow.
func sentenceTiming(i, n int, segments []transcriber.Segment, defaultDurationMs int64) (int64, int64) {
	if len(segments) > 0 {
		seg := segments[min(i, len(segments)-1)]
		return secondsToMs(seg.Start), secondsToMs(seg.End)
	}
	if n <= 0 {
		return 0, 0
	}
	per := float64(defaultDurationMs) / float64(n)
	return int64(math.Round(float64(i) * per)), int64(math.Round(float64(i+1) * per))
}

func secondsToMs(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

// summarize generates and stores one summary per meeting language. Languages
// that fail are logged and left out of the result.
func (p *Pipeline) summarize(ctx context.Context, meeting *repository.Meeting, text string) []repository.Summary {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	results := make([]*repository.Summary, len(meeting.Languages))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, lang := range meeting.Languages {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
			defer cancel()
			content, err := p.summarizer.Summarize(cctx, text, lang)
			if err != nil {
				slog.Warn("summary generation failed", "meeting_id", meeting.ID, "lang", lang, "error", err)
				return nil
			}
			s, err := p.repo.UpsertSummary(ctx, repository.UpsertSummaryInput{MeetingID: meeting.ID, Lang: lang, Content: content})
			if err != nil {
				slog.Warn("failed to store summary", "meeting_id", meeting.ID, "lang", lang, "error", err, "code", repository.ErrorCode(err))
				return nil
			}
			results[i] = s
			return nil
		})
	}
	_ = g.Wait()

	out := make([]repository.Summary, 0, len(results))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (p *Pipeline) fail(ctx context.Context, sessionID string) {
	if _, err := p.machine.Fail(ctx, sessionID); err != nil {
		slog.Error("failed to mark session failed", "session_id", sessionID, "error", err)
	}
}
