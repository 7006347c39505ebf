package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	audioimpl "github.com/sweetginger/Nyogi/external/audio"
	configloader "github.com/sweetginger/Nyogi/external/config"
	"github.com/sweetginger/Nyogi/external/discord"
	"github.com/sweetginger/Nyogi/external/openai"
	repositoryimpl "github.com/sweetginger/Nyogi/external/repository"
	transcriberimpl "github.com/sweetginger/Nyogi/external/transcriber"
	translatorimpl "github.com/sweetginger/Nyogi/external/translator"
	webhookimpl "github.com/sweetginger/Nyogi/external/webhook"
	"github.com/sweetginger/Nyogi/internal/config"
	"github.com/sweetginger/Nyogi/internal/pipeline"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/server"
	"github.com/sweetginger/Nyogi/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "backend",
		Short:         "Bilingual meeting transcription backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newProcessCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload API and the live captioning websocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newProcessCmd() *cobra.Command {
	var (
		meetingID string
		file      string
		startedBy string
		title     string
		languages []string
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the batch pipeline on a local recording",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd.Context(), processOptions{
				meetingID: meetingID,
				file:      file,
				startedBy: startedBy,
				title:     title,
				languages: languages,
			})
		},
	}
	cmd.Flags().StringVar(&meetingID, "meeting", "", "meeting id")
	cmd.Flags().StringVar(&file, "file", "", "path to the recording")
	cmd.Flags().StringVar(&startedBy, "started-by", "cli", "user recorded as the session starter")
	cmd.Flags().StringVar(&title, "title", "", "meeting title used when the meeting is created")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "create the meeting with this language pair if it does not exist (e.g. ko,en)")
	_ = cmd.MarkFlagRequired("meeting")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	openai.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	translatorimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	pipeline.RegisterDI(injector)
	server.RegisterDI(injector)

	return injector
}

func bootstrap() (*config.Config, do.Injector) {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "database_driver", cfg.DatabaseDriver, "transcriber", cfg.TranscriberBackend, "translator", cfg.TranslatorBackend)

	slog.Info("startup: building dependency graph")
	return cfg, setupDI(cfg)
}

func closeRepository(injector do.Injector) {
	repo, err := do.Invoke[repository.Repository](injector)
	if err != nil {
		return
	}
	if err := repo.Close(); err != nil {
		slog.Error("repository close failed", "error", err)
	}
}

func runServe(ctx context.Context) error {
	_, injector := bootstrap()
	defer closeRepository(injector)

	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err = srv.Run(ctx)
	if p, perr := do.Invoke[*pipeline.Pipeline](injector); perr == nil {
		p.WaitNotifications()
	}
	if err != nil {
		return err
	}
	slog.Info("shut down")
	return nil
}

type processOptions struct {
	meetingID string
	file      string
	startedBy string
	title     string
	languages []string
}

func runProcess(ctx context.Context, opts processOptions) error {
	_, injector := bootstrap()
	defer closeRepository(injector)

	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	if len(opts.languages) > 0 {
		if len(opts.languages) != 2 {
			return fmt.Errorf("--languages needs exactly two codes, got %q", strings.Join(opts.languages, ","))
		}
		repo, err := do.Invoke[repository.Repository](injector)
		if err != nil {
			return fmt.Errorf("failed to resolve repository: %w", err)
		}
		if err := repo.EnsureMeeting(ctx, repository.Meeting{ID: opts.meetingID, Title: opts.title, Languages: opts.languages}); err != nil {
			return fmt.Errorf("failed to create meeting: %w", err)
		}
	}

	p, err := do.Invoke[*pipeline.Pipeline](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	res, err := p.Process(ctx, pipeline.UploadInput{
		MeetingID: opts.meetingID,
		StartedBy: opts.startedBy,
		Audio:     data,
		Filename:  filepath.Base(opts.file),
	})
	p.WaitNotifications()
	if err != nil {
		return err
	}
	slog.Info("recording processed", "meeting_id", opts.meetingID, "session_id", res.SessionID, "sentences", res.SentenceCount)
	return nil
}
