package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prepdeck/interviewd/pkg/gateway/config"
	"github.com/prepdeck/interviewd/pkg/gateway/handlers"
	"github.com/prepdeck/interviewd/pkg/gateway/lifecycle"
	"github.com/prepdeck/interviewd/pkg/gateway/mw"
	"github.com/prepdeck/interviewd/pkg/gateway/sessions"
	"github.com/prepdeck/interviewd/pkg/interview"
	"github.com/prepdeck/interviewd/pkg/interview/store"
)

// Deps are the injected collaborators shared by all interview sessions.
type Deps struct {
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker

	Questions  interview.QuestionProvider
	Analyzer   interview.FeedbackAnalyzer
	Narrator   interview.Narrator
	Snapshots  store.Store
	Completion interview.CompletionSink

	NewTranscriber handlers.TranscriberFactory
	NewRecorder    handlers.RecorderFactory
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps
}

func New(cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.Sessions == nil {
		deps.Sessions = sessions.NewTracker()
	}

	s := &Server{
		cfg:    cfg,
		logger: deps.Logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.deps.Lifecycle,
		Sessions:  s.deps.Sessions,
	})

	s.mux.Handle("/v1/interview", handlers.InterviewHandler{
		Config:         s.cfg,
		Logger:         s.logger,
		Lifecycle:      s.deps.Lifecycle,
		Sessions:       s.deps.Sessions,
		Questions:      s.deps.Questions,
		Analyzer:       s.deps.Analyzer,
		Narrator:       s.deps.Narrator,
		Snapshots:      s.deps.Snapshots,
		Completion:     s.deps.Completion,
		NewTranscriber: s.deps.NewTranscriber,
		NewRecorder:    s.deps.NewRecorder,
	})

	s.mux.Handle("/", handlers.NotFound())
}

// SetDraining flips readiness off and makes the interview handler reject
// new connections.
func (s *Server) SetDraining() {
	s.deps.Lifecycle.SetDraining(true)
}

// WarnSessionsDraining tells every live session that shutdown is imminent.
func (s *Server) WarnSessionsDraining() int {
	return s.deps.Sessions.WarnAll("draining", "server is shutting down")
}

// WaitSessions blocks until live sessions end or the context expires.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.deps.Sessions.Wait(ctx)
}

// CancelSessions force-closes any sessions still connected.
func (s *Server) CancelSessions() int {
	return s.deps.Sessions.CancelAll()
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.cfg, s.logger, h)
	h = mw.RequestID(h)
	return h
}
