package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Snapshot persistence. Empty URLs disable the corresponding tier; with
	// both empty the gateway falls back to the in-memory store.
	RedisURL    string
	DatabaseURL string

	// Gemini feedback analyzer. Empty key disables analysis entirely.
	GeminiAPIKey string
	GeminiModel  string

	// QuestionsFile is the path to the JSON question bank.
	QuestionsFile string

	// Interview session defaults.
	SessionDuration      time.Duration
	NarrationLeadIn      time.Duration
	FeedbackHold         time.Duration
	SilenceAutoSubmit    time.Duration
	SilencePollInterval  time.Duration
	SilenceCalibration   time.Duration
	SilenceHangover      time.Duration
	AutosaveInterval     time.Duration
	SnapshotStaleness    time.Duration
	MaxSessionsPerServer int

	// WebSocket limits (/v1/interview).
	WSMaxAudioFrameBytes  int
	WSMaxJSONMessageBytes int64
	WSPingInterval        time.Duration
	WSWriteTimeout        time.Duration
	WSHandshakeTimeout    time.Duration
	WSMaxSessionDuration  time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("INTERVIEWD_ADDR", ":8080"),
		AuthMode:              AuthMode(envOr("INTERVIEWD_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:               make(map[string]struct{}),
		TrustProxyHeaders:     envBoolOr("INTERVIEWD_TRUST_PROXY_HEADERS", false),
		CORSAllowedOrigins:    make(map[string]struct{}),
		RedisURL:              envOr("INTERVIEWD_REDIS_URL", ""),
		DatabaseURL:           envOr("INTERVIEWD_DATABASE_URL", ""),
		GeminiAPIKey:          envOr("GEMINI_API_KEY", ""),
		GeminiModel:           envOr("INTERVIEWD_GEMINI_MODEL", ""),
		QuestionsFile:         envOr("INTERVIEWD_QUESTIONS_FILE", "questions.json"),
		SessionDuration:       envDurationOr("INTERVIEWD_SESSION_DURATION", 30*time.Minute),
		NarrationLeadIn:       envDurationOr("INTERVIEWD_NARRATION_LEAD_IN", 500*time.Millisecond),
		FeedbackHold:          envDurationOr("INTERVIEWD_FEEDBACK_HOLD", 1200*time.Millisecond),
		SilenceAutoSubmit:     envDurationOr("INTERVIEWD_SILENCE_AUTO_SUBMIT", 5*time.Second),
		SilencePollInterval:   envDurationOr("INTERVIEWD_SILENCE_POLL_INTERVAL", 100*time.Millisecond),
		SilenceCalibration:    envDurationOr("INTERVIEWD_SILENCE_CALIBRATION", time.Second),
		SilenceHangover:       envDurationOr("INTERVIEWD_SILENCE_HANGOVER", 400*time.Millisecond),
		AutosaveInterval:      envDurationOr("INTERVIEWD_AUTOSAVE_INTERVAL", 30*time.Second),
		SnapshotStaleness:     envDurationOr("INTERVIEWD_SNAPSHOT_STALENESS", 24*time.Hour),
		MaxSessionsPerServer:  envIntOr("INTERVIEWD_MAX_SESSIONS", 200),
		WSMaxAudioFrameBytes:  envIntOr("INTERVIEWD_WS_MAX_AUDIO_FRAME_BYTES", 8192),
		WSMaxJSONMessageBytes: envInt64Or("INTERVIEWD_WS_MAX_JSON_MESSAGE_BYTES", 256*1024),
		WSPingInterval:        envDurationOr("INTERVIEWD_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:        envDurationOr("INTERVIEWD_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:    envDurationOr("INTERVIEWD_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		WSMaxSessionDuration:  envDurationOr("INTERVIEWD_WS_MAX_DURATION", 2*time.Hour),
		ReadHeaderTimeout:     envDurationOr("INTERVIEWD_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:   envDurationOr("INTERVIEWD_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("INTERVIEWD_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("INTERVIEWD_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("INTERVIEWD_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.SessionDuration <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SESSION_DURATION must be > 0")
	}
	if cfg.NarrationLeadIn < 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_NARRATION_LEAD_IN must be >= 0")
	}
	if cfg.FeedbackHold < 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_FEEDBACK_HOLD must be >= 0")
	}
	if cfg.SilenceAutoSubmit <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SILENCE_AUTO_SUBMIT must be > 0")
	}
	if cfg.SilencePollInterval <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SILENCE_POLL_INTERVAL must be > 0")
	}
	if cfg.SilencePollInterval >= cfg.SilenceAutoSubmit {
		return Config{}, fmt.Errorf("INTERVIEWD_SILENCE_POLL_INTERVAL must be < INTERVIEWD_SILENCE_AUTO_SUBMIT")
	}
	if cfg.SilenceCalibration < 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SILENCE_CALIBRATION must be >= 0")
	}
	if cfg.SilenceHangover < 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SILENCE_HANGOVER must be >= 0")
	}
	if cfg.AutosaveInterval <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_AUTOSAVE_INTERVAL must be > 0")
	}
	if cfg.SnapshotStaleness <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SNAPSHOT_STALENESS must be > 0")
	}
	if cfg.MaxSessionsPerServer <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_MAX_SESSIONS must be > 0")
	}
	if cfg.WSMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_WS_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.WSMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_WS_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_WS_MAX_DURATION must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_API_KEYS must be set when INTERVIEWD_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
