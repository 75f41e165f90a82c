package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/prepdeck/interviewd/pkg/gateway/config"
	"github.com/prepdeck/interviewd/pkg/gateway/lifecycle"
	"github.com/prepdeck/interviewd/pkg/gateway/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		Draining       bool     `json:"draining"`
		AuthMode       string   `json:"auth_mode"`
		ActiveSessions int      `json:"active_sessions"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.SessionDuration <= 0 {
		issues = append(issues, "session duration must be > 0")
	}
	if h.Config.SilenceAutoSubmit <= 0 || h.Config.SilencePollInterval <= 0 {
		issues = append(issues, "silence intervals must be > 0")
	}
	if h.Config.SilencePollInterval >= h.Config.SilenceAutoSubmit {
		issues = append(issues, "silence poll interval must be below the auto-submit threshold")
	}
	if h.Config.AutosaveInterval <= 0 || h.Config.SnapshotStaleness <= 0 {
		issues = append(issues, "snapshot intervals must be > 0")
	}
	if h.Config.MaxSessionsPerServer <= 0 {
		issues = append(issues, "max sessions must be > 0")
	}
	if h.Config.WSMaxAudioFrameBytes <= 0 || h.Config.WSMaxJSONMessageBytes <= 0 {
		issues = append(issues, "websocket frame budgets must be > 0")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 || h.Config.WSMaxSessionDuration <= 0 {
		issues = append(issues, "websocket timeouts must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		Draining:       draining,
		AuthMode:       string(h.Config.AuthMode),
		ActiveSessions: h.Sessions.Count(),
		Issues:         issues,
	})
}
