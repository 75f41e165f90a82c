package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prepdeck/interviewd/pkg/gateway/config"
	"github.com/prepdeck/interviewd/pkg/gateway/lifecycle"
	"github.com/prepdeck/interviewd/pkg/gateway/sessions"
	"github.com/prepdeck/interviewd/pkg/interview"
	"github.com/prepdeck/interviewd/pkg/interview/store"
)

func TestInterviewHandler_HandshakeUnsupportedVersion(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	hello := baseHello()
	hello["protocol_version"] = "2"
	mustWriteJSON(t, conn, hello)

	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" {
		t.Fatalf("type=%v", msg["type"])
	}
	if msg["code"] != "unsupported" {
		t.Fatalf("code=%v", msg["code"])
	}
}

func TestInterviewHandler_RejectsWrongAudioFormat(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	hello := baseHello()
	hello["audio_in"] = map[string]any{"encoding": "pcm_s16le", "sample_rate_hz": 44100, "channels": 1}
	mustWriteJSON(t, conn, hello)

	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" || msg["code"] != "unsupported" {
		t.Fatalf("type=%v code=%v", msg["type"], msg["code"])
	}
	if msg["param"] != "audio_in.sample_rate_hz" {
		t.Fatalf("param=%v", msg["param"])
	}
}

func TestInterviewHandler_RequiresAPIKey(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	hello := baseHello()
	delete(hello, "auth")
	mustWriteJSON(t, conn, hello)

	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" || msg["code"] != "unauthorized" {
		t.Fatalf("type=%v code=%v", msg["type"], msg["code"])
	}
}

func TestInterviewHandler_AckThenReady(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{questionCount: 3})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello())

	ack := mustReadJSON(t, conn, 2*time.Second)
	if ack["type"] != "hello_ack" {
		t.Fatalf("type=%v", ack["type"])
	}
	sessionID, _ := ack["session_id"].(string)
	if sessionID == "" {
		t.Fatal("expected session_id in hello_ack")
	}

	ready := readUntilType(t, conn, "session.ready", 2*time.Second)
	if got, _ := ready["question_count"].(float64); int(got) != 3 {
		t.Fatalf("question_count=%v", ready["question_count"])
	}
	if ready["session_id"] != sessionID {
		t.Fatalf("session_id mismatch: ack=%v ready=%v", sessionID, ready["session_id"])
	}
}

func TestInterviewHandler_BeginPresentsQuestion(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{questionCount: 2})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello())
	readUntilType(t, conn, "session.ready", 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "begin"})

	presented := readUntilType(t, conn, "question.presented", 2*time.Second)
	if got, _ := presented["index"].(float64); int(got) != 0 {
		t.Fatalf("index=%v", presented["index"])
	}
}

func TestInterviewHandler_IntegritySignalPausesSession(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{questionCount: 1})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello())
	readUntilType(t, conn, "session.ready", 2*time.Second)
	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "begin"})
	readUntilType(t, conn, "question.presented", 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "integrity_signal", "kind": "fullscreen_change", "fullscreen": false})

	violation := readUntilType(t, conn, "integrity.violation", 2*time.Second)
	if violation["kind"] != "fullscreen_exit" {
		t.Fatalf("kind=%v", violation["kind"])
	}
	if got, _ := violation["violation_count"].(float64); int(got) != 1 {
		t.Fatalf("violation_count=%v", violation["violation_count"])
	}
	readUntilType(t, conn, "session.paused", 2*time.Second)
}

func TestInterviewHandler_PauseAndResumeControls(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{questionCount: 1})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello())
	readUntilType(t, conn, "session.ready", 2*time.Second)
	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "begin"})
	readUntilType(t, conn, "question.presented", 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "pause"})
	readUntilType(t, conn, "session.paused", 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "resume"})
	readUntilType(t, conn, "session.resumed", 2*time.Second)
}

func TestInterviewHandler_EndControlCompletes(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{questionCount: 2})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello())
	readUntilType(t, conn, "session.ready", 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "end"})

	completed := readUntilType(t, conn, "session.completed", 2*time.Second)
	if completed["reason"] != "ended_by_user" {
		t.Fatalf("reason=%v", completed["reason"])
	}
}

func TestInterviewHandler_UnknownControlOpRejected(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{})
	defer harness.close()

	conn := mustDialWS(t, serverURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello())
	readUntilType(t, conn, "session.ready", 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "reboot"})

	msg := readUntilType(t, conn, "error", 2*time.Second)
	if msg["code"] != "unsupported" {
		t.Fatalf("code=%v", msg["code"])
	}
}

func TestInterviewHandler_DrainingRejectsConnection(t *testing.T) {
	harness, serverURL := newInterviewTestServer(t, interviewTestOptions{draining: true})
	defer harness.close()

	_, resp, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail while draining")
	}
	if resp == nil || resp.StatusCode != 503 {
		t.Fatalf("resp=%v", resp)
	}
}

// --- harness ---

type handlerQuestionProvider struct {
	questions []interview.Question
}

func (p *handlerQuestionProvider) GenerateQuestions(context.Context, interview.SessionConfig, interview.CandidateProfile) ([]interview.Question, error) {
	return p.questions, nil
}

type interviewTestOptions struct {
	questionCount int
	draining      bool
}

type interviewHarness struct {
	server  *httptest.Server
	tracker *sessions.Tracker
}

func (h *interviewHarness) close() {
	h.server.Close()
}

func newInterviewTestServer(t *testing.T, opts interviewTestOptions) (*interviewHarness, string) {
	t.Helper()
	if opts.questionCount <= 0 {
		opts.questionCount = 2
	}

	questions := make([]interview.Question, 0, opts.questionCount)
	for i := 0; i < opts.questionCount; i++ {
		questions = append(questions, interview.Question{
			ID:    fmt.Sprintf("q-%d", i+1),
			Order: i,
			Text:  fmt.Sprintf("Question %d", i+1),
		})
	}

	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(opts.draining)
	tracker := sessions.NewTracker()

	handler := InterviewHandler{
		Config: config.Config{
			AuthMode:              config.AuthModeRequired,
			APIKeys:               map[string]struct{}{"ivd_sk_test": {}},
			SessionDuration:       30 * time.Minute,
			NarrationLeadIn:       5 * time.Millisecond,
			FeedbackHold:          time.Hour,
			SilenceAutoSubmit:     time.Hour,
			SilencePollInterval:   10 * time.Millisecond,
			SilenceCalibration:    0,
			SilenceHangover:       400 * time.Millisecond,
			AutosaveInterval:      time.Hour,
			SnapshotStaleness:     24 * time.Hour,
			MaxSessionsPerServer:  4,
			WSMaxAudioFrameBytes:  8192,
			WSMaxJSONMessageBytes: 64 * 1024,
			WSPingInterval:        5 * time.Second,
			WSWriteTimeout:        2 * time.Second,
			WSHandshakeTimeout:    2 * time.Second,
			WSMaxSessionDuration:  30 * time.Second,
		},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Lifecycle: lc,
		Sessions:  tracker,
		Questions: &handlerQuestionProvider{questions: questions},
		Snapshots: store.NewMemoryStore(24 * time.Hour),
	}

	srv := httptest.NewServer(handler)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/interview"
	return &interviewHarness{server: srv, tracker: tracker}, url
}

func baseHello() map[string]any {
	return map[string]any{
		"type":             "hello",
		"protocol_version": "1",
		"user_id":          "user-1",
		"auth":             map[string]any{"api_key": "ivd_sk_test"},
		"session":          map[string]any{"type": "technical", "language": "en"},
		"audio_in":         map[string]any{"encoding": "pcm_s16le", "sample_rate_hz": 16000, "channels": 1},
		"features":         map[string]any{"client_transcription": true},
	}
}

func mustDialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	return conn
}

func mustWriteJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func mustReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var out map[string]any
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return out
}

// readUntilType reads frames until one of the given type arrives, skipping
// interleaved events like stage changes and time ticks.
func readUntilType(t *testing.T, conn *websocket.Conn, typ string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("no %q frame before deadline", typ)
	return nil
}
