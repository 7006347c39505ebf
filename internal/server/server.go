// Package server exposes the upload endpoint, the session status endpoint and
// the live captioning websocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sweetginger/Nyogi/internal/audio"
	"github.com/sweetginger/Nyogi/internal/live"
	"github.com/sweetginger/Nyogi/internal/pipeline"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/session"
	"github.com/sweetginger/Nyogi/internal/transcriber"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// BatchProcessor runs the batch pipeline for one upload.
type BatchProcessor interface {
	Process(ctx context.Context, input pipeline.UploadInput) (pipeline.Result, error)
}

type Config struct {
	Addr           string
	MaxUploadBytes int64
	Segmenter      live.Config
	LiveSourceLang string
	LiveTargetLang string
}

type Server struct {
	cfg         Config
	repo        repository.Repository
	machine     *session.Machine
	batch       BatchProcessor
	transcriber transcriber.Transcriber
	decoders    audio.DecoderFactory
	upgrader    websocket.Upgrader
	streams     *streamRegistry
	streamWG    sync.WaitGroup
}

func New(cfg Config, repo repository.Repository, machine *session.Machine, batch BatchProcessor, tr transcriber.Transcriber, decoders audio.DecoderFactory) *Server {
	streams := newStreamRegistry()
	machine.SetStreamTracker(streams)
	return &Server{
		cfg:         cfg,
		repo:        repo,
		machine:     machine,
		batch:       batch,
		transcriber: tr,
		decoders:    decoders,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 16 << 10,
			// Authentication happens in front of this service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		streams: streams,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /meetings/{id}/sessions", s.handleUpload)
	mux.HandleFunc("GET /meetings/{id}/sessions/latest", s.handleLatestSession)
	mux.HandleFunc("GET /ws", s.handleStream)
	return mux
}

// Run serves until ctx is done, then drains HTTP requests and closes the
// live streams, waiting for their final flush.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srv.RegisterOnShutdown(s.streams.closeAll)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	done := make(chan struct{})
	go func() {
		s.streamWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		slog.Warn("live streams did not finish before shutdown timeout")
	}
	return err
}
