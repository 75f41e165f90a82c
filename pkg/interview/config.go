package interview

import (
	"time"
)

// Stage represents the current stage of an interview session.
type Stage int

const (
	// StageLoading is the initial stage while questions and session state load.
	StageLoading Stage = iota
	// StageReady is when the session is prepared and waiting for the user to start.
	StageReady
	// StageQuestion is when a question is being presented and narrated.
	StageQuestion
	// StageListening is when answer capture and silence detection are active.
	StageListening
	// StageProcessing is when a submitted answer is being analyzed.
	StageProcessing
	// StageFeedback is the short hold after analysis before the next question.
	StageFeedback
	// StageCodeReview is the sub-loop of review prompts for structured answers.
	StageCodeReview
	// StageFollowUp is when a generated follow-up question awaits an answer.
	StageFollowUp
	// StageCompleted is the terminal stage.
	StageCompleted
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "LOADING"
	case StageReady:
		return "READY"
	case StageQuestion:
		return "QUESTION"
	case StageListening:
		return "LISTENING"
	case StageProcessing:
		return "PROCESSING"
	case StageFeedback:
		return "FEEDBACK"
	case StageCodeReview:
		return "CODE_REVIEW"
	case StageFollowUp:
		return "FOLLOW_UP"
	case StageCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// allowedTransitions is the stage machine transition table. StageCompleted is
// additionally reachable from every stage (early end, time expiry); that path
// is handled explicitly in the orchestrator rather than listed here.
var allowedTransitions = map[Stage]map[Stage]struct{}{
	StageLoading: {
		StageReady: {},
	},
	StageReady: {
		StageQuestion: {},
	},
	StageQuestion: {
		StageListening: {},
	},
	StageListening: {
		StageProcessing: {},
	},
	StageProcessing: {
		StageFeedback:   {},
		StageCodeReview: {},
		StageFollowUp:   {},
	},
	StageFeedback: {
		StageQuestion: {},
	},
	StageCodeReview: {
		StageQuestion: {},
	},
	StageFollowUp: {
		StageQuestion: {},
	},
}

// canTransition reports whether moving from one stage to another is legal.
func canTransition(from, to Stage) bool {
	if to == StageCompleted {
		return from != StageCompleted
	}
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// SessionConfig holds all configuration for an interview session.
type SessionConfig struct {
	// SessionType identifies the interview flavor (e.g. "behavioral", "technical").
	SessionType string `json:"session_type"`

	// Language is the session language code.
	Language string `json:"language,omitempty"`

	// TotalDuration is the total time budget for the session.
	TotalDuration time.Duration `json:"total_duration"`

	// NarrationLeadIn is how long after narration begins before listening starts.
	NarrationLeadIn time.Duration `json:"narration_lead_in"`

	// FeedbackHold is how long the feedback stage is held before advancing.
	FeedbackHold time.Duration `json:"feedback_hold"`

	// Silence configures the silence detector and auto-submit behavior.
	Silence SilenceConfig `json:"silence"`

	// Autosave configures periodic snapshot persistence.
	Autosave AutosaveConfig `json:"autosave"`

	// SampleRate is the inbound audio sample rate in Hz. Default: 16000.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels. Default: 1 (mono).
	Channels int `json:"channels"`
}

// DefaultSessionConfig returns a SessionConfig with product defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SessionType:     "technical",
		Language:        "en",
		TotalDuration:   30 * time.Minute,
		NarrationLeadIn: 500 * time.Millisecond, // let narration begin before listening
		FeedbackHold:    1200 * time.Millisecond,
		Silence:         DefaultSilenceConfig(),
		Autosave:        DefaultAutosaveConfig(),
		SampleRate:      16000,
		Channels:        1,
	}
}

// SilenceConfig configures speech/silence classification and auto-submit.
type SilenceConfig struct {
	// AutoSubmitThreshold is the continuous-silence duration that triggers
	// auto-submission of the current answer. Default: 5s.
	AutoSubmitThreshold time.Duration `json:"auto_submit_threshold"`

	// PollInterval is how often the orchestrator polls the detector while
	// listening. Default: 100ms.
	PollInterval time.Duration `json:"poll_interval"`

	// CalibrationWindow is how much audio is sampled at startup to establish
	// the baseline noise floor. Default: 1s.
	CalibrationWindow time.Duration `json:"calibration_window"`

	// BaselineMultiplier scales the calibrated noise floor into the speech
	// threshold. Default: 2.5.
	BaselineMultiplier float64 `json:"baseline_multiplier"`

	// MinEnergy is the absolute RMS floor for the speech threshold so that
	// near-silent rooms do not classify breathing as speech. Default: 0.01.
	MinEnergy float64 `json:"min_energy"`

	// Hangover is how long after the last speech frame before the detector
	// flips to silence, so brief mid-sentence pauses do not count. Default: 400ms.
	Hangover time.Duration `json:"hangover"`
}

// DefaultSilenceConfig returns a SilenceConfig with product defaults.
func DefaultSilenceConfig() SilenceConfig {
	return SilenceConfig{
		AutoSubmitThreshold: 5 * time.Second,
		PollInterval:        100 * time.Millisecond,
		CalibrationWindow:   time.Second,
		BaselineMultiplier:  2.5,
		MinEnergy:           0.01,
		Hangover:            400 * time.Millisecond,
	}
}

// AutosaveConfig configures periodic snapshot persistence.
type AutosaveConfig struct {
	// Interval is how often the session snapshot is written. Default: 30s.
	Interval time.Duration `json:"interval"`

	// Staleness is the age past which a recovered snapshot is discarded
	// instead of offered. Default: 24h.
	Staleness time.Duration `json:"staleness"`
}

// DefaultAutosaveConfig returns an AutosaveConfig with product defaults.
func DefaultAutosaveConfig() AutosaveConfig {
	return AutosaveConfig{
		Interval:  30 * time.Second,
		Staleness: 24 * time.Hour,
	}
}

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the standard audio configuration.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c AudioConfig) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c AudioConfig) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}
