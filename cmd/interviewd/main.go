package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/prepdeck/interviewd/internal/dotenv"
	"github.com/prepdeck/interviewd/pkg/gateway/config"
	gatewayserver "github.com/prepdeck/interviewd/pkg/gateway/server"
	"github.com/prepdeck/interviewd/pkg/interview"
	"github.com/prepdeck/interviewd/pkg/interview/feedback"
	"github.com/prepdeck/interviewd/pkg/interview/questions"
	"github.com/prepdeck/interviewd/pkg/interview/store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	newGateway   func(config.Config, gatewayserver.Deps) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// buildSnapshotStore assembles the snapshot tiers: redis as cache, postgres
// as the durable tier, in-memory when neither is configured.
func buildSnapshotStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	var cache, durable store.Store

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		cache = store.NewRedisStore(redis.NewClient(opts), cfg.SnapshotStaleness)
	}
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.SnapshotStaleness)
		if err != nil {
			if cache != nil {
				_ = cache.Close()
			}
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		durable = pg
	}

	switch {
	case cache != nil && durable != nil:
		return store.NewDualStore(cache, durable), nil
	case cache != nil:
		return cache, nil
	case durable != nil:
		return durable, nil
	default:
		return store.NewMemoryStore(cfg.SnapshotStaleness), nil
	}
}

func buildAnalyzer(ctx context.Context, cfg config.Config) (interview.FeedbackAnalyzer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	return feedback.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
}

// maxAnswerClipMs bounds the in-memory recording of one answer; a longer
// answer keeps only its tail.
const maxAnswerClipMs = 5 * 60 * 1000

func clipRecorderFactory(logger *slog.Logger) func() interview.Recorder {
	return func() interview.Recorder {
		return interview.NewClipRecorder(interview.DefaultAudioConfig(), maxAnswerClipMs,
			func(clip interview.RecordedClip) {
				logger.Info("answer clip recorded",
					"session_id", clip.SessionID,
					"question_id", clip.QuestionID,
					"duration_ms", clip.DurationMs,
					"peak", clip.Peak,
				)
			})
	}
}

func completionLogger(logger *slog.Logger) interview.CompletionSink {
	return interview.CompletionFunc(func(sessionID string, summary *interview.Summary) {
		if summary == nil {
			return
		}
		logger.Info("session completed",
			"session_id", sessionID,
			"user_id", summary.UserID,
			"reason", summary.Reason,
			"responses", len(summary.Responses),
			"violations", summary.ViolationCount,
			"duration_seconds", summary.DurationSeconds,
		)
	})
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bank, err := questions.LoadFile(cfg.QuestionsFile)
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}

	snapshots, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	defer snapshots.Close()

	analyzer, err := buildAnalyzer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("feedback analyzer: %w", err)
	}

	gw := deps.newGateway(cfg, gatewayserver.Deps{
		Logger:      logger,
		Questions:   bank,
		Analyzer:    analyzer,
		Snapshots:   snapshots,
		Completion:  completionLogger(logger),
		NewRecorder: clipRecorderFactory(logger),
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting interviewd",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"analyzer_enabled", analyzer != nil,
		"redis", cfg.RedisURL != "",
		"postgres", cfg.DatabaseURL != "",
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	warned := gw.WarnSessionsDraining()
	if warned > 0 {
		logger.Info("warned live sessions", "count", warned)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		canceled := gw.CancelSessions()
		logger.Warn("canceled sessions that outlived the grace period", "count", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("interviewd stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "interviewd: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "interviewd: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
