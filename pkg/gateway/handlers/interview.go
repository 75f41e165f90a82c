package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prepdeck/interviewd/pkg/gateway/auth"
	"github.com/prepdeck/interviewd/pkg/gateway/config"
	"github.com/prepdeck/interviewd/pkg/gateway/lifecycle"
	"github.com/prepdeck/interviewd/pkg/gateway/mw"
	"github.com/prepdeck/interviewd/pkg/gateway/protocol"
	"github.com/prepdeck/interviewd/pkg/gateway/sessions"
	"github.com/prepdeck/interviewd/pkg/interview"
	"github.com/prepdeck/interviewd/pkg/interview/store"
)

// TranscriberFactory builds a per-session transcriber. Nil means transcription
// is client-side only.
type TranscriberFactory func() interview.Transcriber

// RecorderFactory builds a per-session recorder. Nil disables media capture.
type RecorderFactory func() interview.Recorder

// InterviewHandler handles /v1/interview websocket sessions. One connection
// is one interview: the handshake carries the candidate identity and audio
// format, then control frames drive the orchestrator and its events stream
// back as typed JSON frames.
type InterviewHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker

	Questions  interview.QuestionProvider
	Analyzer   interview.FeedbackAnalyzer
	Narrator   interview.Narrator
	Snapshots  store.Store
	Completion interview.CompletionSink

	NewTranscriber TranscriberFactory
	NewRecorder    RecorderFactory
}

// signalFeed adapts client integrity frames into the orchestrator's signal
// source interface.
type signalFeed struct {
	ch chan interview.Signal
}

func (f *signalFeed) Signals() <-chan interview.Signal { return f.ch }

func (f *signalFeed) push(sig interview.Signal) {
	select {
	case f.ch <- sig:
	default:
		// Integrity signals are bursty on focus thrash; dropping under
		// pressure is preferable to blocking the read loop.
	}
}

func (h InterviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		writeHTTPError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed", reqID)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeHTTPError(w, http.StatusServiceUnavailable, "overloaded_error", "server is draining", reqID)
		return
	}
	if !h.originAllowed(r) {
		writeHTTPError(w, http.StatusForbidden, "permission_error", "origin is not allowed", reqID)
		return
	}
	if h.Config.MaxSessionsPerServer > 0 && h.Sessions.Count() >= h.Config.MaxSessionsPerServer {
		writeHTTPError(w, http.StatusServiceUnavailable, "overloaded_error", "server at session capacity", reqID)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.WSMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxJSONMessageBytes)
	}

	hello, ok := h.readHello(conn)
	if !ok {
		return
	}
	if err := h.authorize(r, hello); err != nil {
		h.writeWSError(conn, err, true)
		return
	}

	feed := &signalFeed{ch: make(chan interview.Signal, 16)}
	o := interview.NewOrchestrator(h.sessionConfig(hello), interview.Deps{
		Questions:   h.Questions,
		Analyzer:    h.Analyzer,
		Narrator:    h.Narrator,
		Transcriber: h.transcriber(hello),
		Recorder:    h.recorder(),
		Snapshots:   h.Snapshots,
		Completion:  h.Completion,
		Integrity:   []interview.SignalSource{feed},
		Logger:      h.Logger,
	})

	ctx := r.Context()
	var cancel context.CancelFunc
	if h.Config.WSMaxSessionDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.Config.WSMaxSessionDuration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	profile := interview.CandidateProfile{
		Name:      hello.Profile.Name,
		Role:      hello.Profile.Role,
		Seniority: hello.Profile.Seniority,
		Topics:    hello.Profile.Topics,
	}
	if err := o.Start(ctx, hello.UserID, profile); err != nil {
		h.writeWSError(conn, err, true)
		return
	}
	defer o.Close()

	sessionID := o.SessionID()
	writer := &wsWriter{conn: conn, timeout: h.Config.WSWriteTimeout}

	ack, err := protocol.EncodeServerHello(sessionID)
	if err != nil || writer.write(websocket.TextMessage, ack) != nil {
		return
	}

	unregister := func() {}
	if h.Sessions != nil {
		unregister = h.Sessions.Register(sessionID, sessions.Handle{
			Cancel: func() {
				cancel()
				_ = conn.Close()
			},
			Warn: func(code, message string) error {
				return writer.write(websocket.TextMessage, protocol.EncodeServerError(
					&protocol.DecodeError{Code: code, Message: message}))
			},
		})
	}
	defer unregister()

	writerDone := make(chan struct{})
	go h.writeLoop(writer, o, writerDone)

	// The read loop blocks in ReadMessage; closing the connection is the
	// only way to unblock it when the session deadline passes.
	readerStopped := make(chan struct{})
	defer close(readerStopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readerStopped:
		}
	}()

	h.readLoop(ctx, conn, writer, o, feed)

	// Abnormal or client-initiated disconnect. Close persists a snapshot
	// for an in-flight session; a completed session is already terminal.
	_ = o.Close()
	<-writerDone

	if h.Logger != nil {
		h.Logger.Info("interview session ended",
			"session_id", sessionID,
			"request_id", reqID,
			"stage", o.Stage().String(),
		)
	}
}

// readHello performs the handshake: first frame must be a valid hello within
// the handshake timeout.
func (h InterviewHandler) readHello(conn *websocket.Conn) (protocol.ClientHello, bool) {
	timeout := h.Config.WSHandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	messageType, frame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, &protocol.DecodeError{Code: "bad_request", Message: "failed to read hello"}, true)
		return protocol.ClientHello{}, false
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, &protocol.DecodeError{Code: "bad_request", Message: "first frame must be hello"}, true)
		return protocol.ClientHello{}, false
	}

	decoded, err := protocol.DecodeClientMessage(frame)
	if err != nil {
		h.writeWSError(conn, err, true)
		return protocol.ClientHello{}, false
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, &protocol.DecodeError{Code: "bad_request", Message: "first frame must be hello"}, true)
		return protocol.ClientHello{}, false
	}

	_ = conn.SetReadDeadline(time.Time{})
	return hello, true
}

func (h InterviewHandler) authorize(r *http.Request, hello protocol.ClientHello) error {
	apiKey := ""
	if hello.Auth != nil {
		apiKey = strings.TrimSpace(hello.Auth.APIKey)
	}
	if apiKey == "" {
		apiKey, _ = auth.FromQuery(r)
	}

	switch h.Config.AuthMode {
	case config.AuthModeDisabled:
		return nil
	case config.AuthModeOptional:
		if apiKey == "" {
			return nil
		}
	case config.AuthModeRequired:
		if apiKey == "" {
			return &protocol.DecodeError{Code: "unauthorized", Message: "missing api key", Param: "auth.api_key"}
		}
	default:
		return &protocol.DecodeError{Code: "internal", Message: "invalid auth mode"}
	}

	if _, ok := h.Config.APIKeys[apiKey]; !ok {
		return &protocol.DecodeError{Code: "unauthorized", Message: "invalid api key", Param: "auth.api_key"}
	}
	return nil
}

// sessionConfig builds the per-session config from server defaults plus the
// handshake's session parameters.
func (h InterviewHandler) sessionConfig(hello protocol.ClientHello) interview.SessionConfig {
	cfg := interview.DefaultSessionConfig()
	cfg.SessionType = hello.Session.Type
	if hello.Session.Language != "" {
		cfg.Language = hello.Session.Language
	}
	cfg.TotalDuration = h.Config.SessionDuration
	cfg.NarrationLeadIn = h.Config.NarrationLeadIn
	cfg.FeedbackHold = h.Config.FeedbackHold
	cfg.Silence.AutoSubmitThreshold = h.Config.SilenceAutoSubmit
	cfg.Silence.PollInterval = h.Config.SilencePollInterval
	cfg.Silence.CalibrationWindow = h.Config.SilenceCalibration
	cfg.Silence.Hangover = h.Config.SilenceHangover
	cfg.Autosave.Interval = h.Config.AutosaveInterval
	cfg.Autosave.Staleness = h.Config.SnapshotStaleness
	cfg.SampleRate = hello.AudioIn.SampleRateHz
	cfg.Channels = hello.AudioIn.Channels
	return cfg
}

func (h InterviewHandler) transcriber(hello protocol.ClientHello) interview.Transcriber {
	if hello.Features.ClientTranscription || h.NewTranscriber == nil {
		return nil
	}
	return h.NewTranscriber()
}

func (h InterviewHandler) recorder() interview.Recorder {
	if h.NewRecorder == nil {
		return nil
	}
	return h.NewRecorder()
}

// writeLoop streams orchestrator events to the client and keeps the
// connection alive with pings. It exits when the event channel closes.
func (h InterviewHandler) writeLoop(writer *wsWriter, o *interview.Orchestrator, done chan<- struct{}) {
	defer close(done)

	pingInterval := h.Config.WSPingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-o.Events():
			if !ok {
				return
			}
			frame, err := protocol.EncodeServerEvent(ev)
			if err != nil {
				if h.Logger != nil {
					h.Logger.Warn("failed to encode event", "event_type", ev.EventType(), "error", err)
				}
				continue
			}
			if writer.write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			if writer.ping() != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames until the connection breaks or the
// session context ends.
func (h InterviewHandler) readLoop(ctx context.Context, conn *websocket.Conn, writer *wsWriter, o *interview.Orchestrator, feed *signalFeed) {
	for {
		if ctx.Err() != nil {
			return
		}
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if messageType == websocket.BinaryMessage {
			if h.Config.WSMaxAudioFrameBytes > 0 && len(frame) > h.Config.WSMaxAudioFrameBytes {
				_ = writer.write(websocket.TextMessage, protocol.EncodeServerError(
					&protocol.DecodeError{Code: "bad_request", Message: "audio frame too large"}))
				continue
			}
			_ = o.SendAudio(frame)
			continue
		}
		if messageType != websocket.TextMessage {
			continue
		}

		decoded, err := protocol.DecodeClientMessage(frame)
		if err != nil {
			_ = writer.write(websocket.TextMessage, protocol.EncodeServerError(err))
			continue
		}
		if err := h.dispatch(decoded, o, feed); err != nil {
			_ = writer.write(websocket.TextMessage, protocol.EncodeServerError(err))
		}
	}
}

func (h InterviewHandler) dispatch(decoded any, o *interview.Orchestrator, feed *signalFeed) error {
	switch msg := decoded.(type) {
	case protocol.ClientControl:
		return h.dispatchControl(msg.Op, o)
	case protocol.ClientAudioFrame:
		pcm, err := base64.StdEncoding.DecodeString(msg.DataB64)
		if err != nil {
			return &protocol.DecodeError{Code: "bad_request", Message: "invalid base64 audio", Param: "data_b64"}
		}
		if h.Config.WSMaxAudioFrameBytes > 0 && len(pcm) > h.Config.WSMaxAudioFrameBytes {
			return &protocol.DecodeError{Code: "bad_request", Message: "audio frame too large", Param: "data_b64"}
		}
		return o.SendAudio(pcm)
	case protocol.ClientTranscript:
		o.AppendTranscript(msg.Text, msg.IsFinal)
		return nil
	case protocol.ClientStructuredAnswer:
		o.SetStructuredAnswer(msg.Code, msg.Language)
		return nil
	case protocol.ClientIntegritySignal:
		feed.push(integritySignal(msg))
		return nil
	case protocol.ClientHello:
		return &protocol.DecodeError{Code: "bad_request", Message: "unexpected hello after handshake"}
	default:
		return &protocol.DecodeError{Code: "bad_request", Message: "unsupported message type"}
	}
}

func (h InterviewHandler) dispatchControl(op string, o *interview.Orchestrator) error {
	switch op {
	case protocol.OpBegin:
		return o.Begin()
	case protocol.OpSubmit:
		return o.SubmitAnswer()
	case protocol.OpSkip:
		return o.Skip()
	case protocol.OpPause:
		o.Pause()
		return nil
	case protocol.OpResume:
		o.Resume()
		return nil
	case protocol.OpEnd:
		o.EndNow()
		return nil
	case protocol.OpAcceptRecovery:
		return o.AcceptRecovery()
	case protocol.OpDeclineRecovery:
		return o.DeclineRecovery()
	default:
		return &protocol.DecodeError{Code: "unsupported", Message: "unsupported control operation", Param: "op"}
	}
}

func integritySignal(msg protocol.ClientIntegritySignal) interview.Signal {
	sig := interview.Signal{
		At:       time.Now(),
		Duration: time.Duration(msg.DurationMS) * time.Millisecond,
	}
	switch msg.Kind {
	case "fullscreen_change":
		sig.Kind = interview.SignalFullscreenChange
		sig.Fullscreen = msg.Fullscreen
	case "tab_hidden":
		sig.Kind = interview.SignalTabHidden
	case "window_blur":
		sig.Kind = interview.SignalWindowBlur
	}
	return sig
}

func (h InterviewHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h InterviewHandler) writeWSError(conn *websocket.Conn, err error, closeConn bool) {
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteMessage(websocket.TextMessage, protocol.EncodeServerError(err))
	if closeConn {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), deadline)
	}
}

// wsWriter serializes writes to the connection: the event loop, ping ticker,
// and control-error replies all share it.
type wsWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *wsWriter) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteMessage(messageType, data)
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	deadline := time.Now().Add(w.timeout)
	if w.timeout <= 0 {
		deadline = time.Now().Add(5 * time.Second)
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

type apiError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeHTTPError(w http.ResponseWriter, status int, typ, message, requestID string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": apiError{
		Type:      typ,
		Message:   message,
		RequestID: requestID,
	}})
}
