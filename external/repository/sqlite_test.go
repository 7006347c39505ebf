package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweetginger/Nyogi/internal/repository"
)

func newTestRepository(t *testing.T) repository.Repository {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := RunSQLiteMigration(ctx, db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	repo := NewSQLiteRepository(db)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	if err := repo.EnsureMeeting(ctx, repository.Meeting{ID: "m1", Title: "weekly", Languages: []string{"ko", "en"}}); err != nil {
		t.Fatalf("failed to seed meeting: %v", err)
	}
	return repo
}

func testCaptions(texts ...string) []repository.Caption {
	out := make([]repository.Caption, 0, len(texts))
	for i, text := range texts {
		out = append(out, repository.Caption{
			Seq:        i + 1,
			Speaker:    "S1",
			StartMs:    int64(i) * 1000,
			EndMs:      int64(i+1) * 1000,
			SourceLang: "en",
			SourceText: text,
			TargetLang: "ko",
			TargetText: text + " (ko)",
		})
	}
	return out
}

func TestSQLite_GetMeeting(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.GetMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || len(m.Languages) != 2 || m.Languages[0] != "ko" || m.Languages[1] != "en" {
		t.Fatalf("unexpected meeting: %+v", m)
	}
	if m.Modality != repository.ModalityInPerson {
		t.Fatalf("unexpected modality: %s", m.Modality)
	}

	missing, err := repo.GetMeeting(ctx, "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil meeting, got %+v", missing)
	}
}

func TestSQLite_EnsureMeeting_Modality(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.EnsureMeeting(ctx, repository.Meeting{ID: "m2", Languages: []string{"en", "ko"}, Modality: repository.ModalityRemote}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, err := repo.GetMeeting(ctx, "m2")
	if err != nil || m == nil {
		t.Fatalf("failed to load meeting: %v", err)
	}
	if m.Modality != repository.ModalityRemote {
		t.Fatalf("expected remote, got %s", m.Modality)
	}

	if err := repo.EnsureMeeting(ctx, repository.Meeting{ID: "m3", Languages: []string{"ko", "en"}, Modality: "bilingual"}); err == nil {
		t.Fatal("expected unknown modality to be rejected")
	}
}

func TestSQLite_CreateSessionIfAbsent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, created, err := repo.CreateSessionIfAbsent(ctx, repository.CreateSessionInput{
		MeetingID: "m1",
		Status:    repository.SessionStatusUploading,
		StartedBy: "u1",
		StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || first.Status != repository.SessionStatusUploading {
		t.Fatalf("expected created uploading session, got created=%v %+v", created, first)
	}

	second, created, err := repo.CreateSessionIfAbsent(ctx, repository.CreateSessionInput{
		MeetingID: "m1",
		Status:    repository.SessionStatusRecording,
		StartedBy: "u2",
		StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected second create to lose")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing session %s, got %s", first.ID, second.ID)
	}
}

func TestSQLite_CreateSessionIfAbsent_Concurrent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := make(map[string]struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, created, err := repo.CreateSessionIfAbsent(ctx, repository.CreateSessionInput{
				MeetingID: "m1",
				Status:    repository.SessionStatusUploading,
				StartedBy: "u1",
				StartedAt: time.Now(),
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if created {
				createdCount++
			}
			ids[s.ID] = struct{}{}
		}()
	}
	wg.Wait()
	if createdCount != 1 {
		t.Fatalf("expected exactly one created session, got %d", createdCount)
	}
	if len(ids) != 1 {
		t.Fatalf("expected every caller to observe the same session, got %d ids", len(ids))
	}
}

func TestSQLite_TransitionSession(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Hour)
	s, _, err := repo.CreateSessionIfAbsent(ctx, repository.CreateSessionInput{
		MeetingID: "m1",
		Status:    repository.SessionStatusProcessing,
		StartedBy: "u1",
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ended := time.Now()
	failed, err := repo.TransitionSession(ctx, repository.TransitionSessionInput{
		SessionID: s.ID,
		From:      []repository.SessionStatus{repository.SessionStatusProcessing},
		To:        repository.SessionStatusFailed,
		EndedAt:   &ended,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.Status != repository.SessionStatusFailed || failed.EndedAt == nil {
		t.Fatalf("unexpected failed session: %+v", failed)
	}

	_, err = repo.TransitionSession(ctx, repository.TransitionSessionInput{
		SessionID: s.ID,
		From:      []repository.SessionStatus{repository.SessionStatusProcessing},
		To:        repository.SessionStatusCompleted,
	})
	if !errors.Is(err, repository.ErrStaleSession) {
		t.Fatalf("expected stale session error, got %v", err)
	}

	restarted := time.Now()
	retried, err := repo.TransitionSession(ctx, repository.TransitionSessionInput{
		SessionID:    s.ID,
		From:         []repository.SessionStatus{repository.SessionStatusFailed},
		To:           repository.SessionStatusUploading,
		StartedBy:    "u2",
		StartedAt:    &restarted,
		ClearEndedAt: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retried.ID != s.ID || retried.EndedAt != nil || retried.StartedBy != "u2" {
		t.Fatalf("unexpected retried session: %+v", retried)
	}
	if retried.StartedAt.UnixMilli() != restarted.UnixMilli() {
		t.Fatalf("expected started_at reset, got %v", retried.StartedAt)
	}
}

func TestSQLite_ReplaceCaptions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.ReplaceCaptions(ctx, "m1", testCaptions("a", "b", "c")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.ReplaceCaptions(ctx, "m1", testCaptions("x", "y")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, err := repo.ListCaptionsByMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].SourceText != "x" || list[1].Seq != 2 {
		t.Fatalf("unexpected captions: %+v", list)
	}
}

func TestSQLite_ReplaceCaptions_IsAtomic(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.ReplaceCaptions(ctx, "m1", testCaptions("a", "b", "c")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	broken := testCaptions("x", "y")
	broken[1].Seq = 1
	err := repo.ReplaceCaptions(ctx, "m1", broken)
	if err == nil {
		t.Fatal("expected duplicate seq to fail")
	}
	if code := repository.ErrorCode(err); code != repository.ErrorCodeUniqueViolation {
		t.Fatalf("expected unique violation code, got %s", code)
	}

	list, err := repo.ListCaptionsByMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 || list[0].SourceText != "a" || list[2].SourceText != "c" {
		t.Fatalf("expected original captions to survive, got %+v", list)
	}
}

func TestSQLite_AppendCaption(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i, text := range []string{"안녕하세요", "회의를 시작합니다"} {
		c, err := repo.AppendCaption(ctx, repository.AppendCaptionInput{
			MeetingID:  "m1",
			Speaker:    "S1",
			StartMs:    int64(i) * 2000,
			EndMs:      int64(i+1) * 2000,
			SourceLang: "ko",
			SourceText: text,
			TargetLang: "en",
			TargetText: text,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Seq != i+1 {
			t.Fatalf("expected seq %d, got %d", i+1, c.Seq)
		}
	}
}

func TestSQLite_UpsertSummary(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, content := range []string{"first", "second"} {
		if _, err := repo.UpsertSummary(ctx, repository.UpsertSummaryInput{MeetingID: "m1", Lang: "en", Content: content}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := repo.UpsertSummary(ctx, repository.UpsertSummaryInput{MeetingID: "m1", Lang: "ko", Content: "요약"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list, err := repo.ListSummariesByMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected one row per language, got %+v", list)
	}
	if list[0].Lang != "en" || list[0].Content != "second" {
		t.Fatalf("expected latest english summary, got %+v", list[0])
	}
}

func TestSQLite_MarkSessionEnded(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	s, _, err := repo.CreateSessionIfAbsent(ctx, repository.CreateSessionInput{
		MeetingID: "m1",
		Status:    repository.SessionStatusRecording,
		StartedBy: "u1",
		StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkSessionEnded(ctx, s.ID, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	latest, err := repo.LatestSessionByMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.EndedAt == nil || latest.Status != repository.SessionStatusRecording {
		t.Fatalf("expected ended recording session, got %+v", latest)
	}
	if err := repo.MarkSessionEnded(ctx, "missing", time.Now()); !errors.Is(err, repository.ErrStaleSession) {
		t.Fatalf("expected stale session error, got %v", err)
	}
}

func TestSQLite_TransitionSession_RequireEnded(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	s, _, err := repo.CreateSessionIfAbsent(ctx, repository.CreateSessionInput{
		MeetingID: "m1",
		Status:    repository.SessionStatusRecording,
		StartedBy: "u1",
		StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	takeover := repository.TransitionSessionInput{
		SessionID:    s.ID,
		From:         []repository.SessionStatus{repository.SessionStatusRecording},
		To:           repository.SessionStatusUploading,
		ClearEndedAt: true,
		RequireEnded: true,
	}

	if _, err := repo.TransitionSession(ctx, takeover); !errors.Is(err, repository.ErrStaleSession) {
		t.Fatalf("expected stale session while the stream is open, got %v", err)
	}

	if err := repo.MarkSessionEnded(ctx, s.ID, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := repo.TransitionSession(ctx, takeover)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != repository.SessionStatusUploading || got.EndedAt != nil {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	cases := map[string]string{
		":memory:":               "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"nyogi.sqlite":           "file:nyogi.sqlite?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"file:data.db?mode=rwc":  "file:data.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"sqlite:///tmp/nyogi.db": "file:/tmp/nyogi.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	}
	for in, want := range cases {
		if got := sqliteDSN(in); got != want {
			t.Fatalf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
