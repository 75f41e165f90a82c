package interview

import (
	"time"
)

// Event is the interface for all session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionReadyEvent is emitted when questions are loaded and the session is
// waiting for the user to start.
type SessionReadyEvent struct {
	SessionID     string `json:"session_id"`
	QuestionCount int    `json:"question_count"`
	TotalSeconds  int    `json:"total_seconds"`
	MediaEnabled  bool   `json:"media_enabled"`
}

func (e *SessionReadyEvent) EventType() string { return "session.ready" }

// StageChangedEvent is emitted when the session stage changes.
type StageChangedEvent struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
}

func (e *StageChangedEvent) EventType() string { return "stage.changed" }

// QuestionPresentedEvent is emitted when a question is presented and
// narration begins.
type QuestionPresentedEvent struct {
	Index    int       `json:"index"`
	Question *Question `json:"question"`
}

func (e *QuestionPresentedEvent) EventType() string { return "question.presented" }

// ListeningStartedEvent is emitted when answer capture begins.
type ListeningStartedEvent struct {
	QuestionID string `json:"question_id"`
	// AutoSubmit is false for structured-answer questions, which are
	// submitted explicitly.
	AutoSubmit bool `json:"auto_submit"`
}

func (e *ListeningStartedEvent) EventType() string { return "listening.started" }

// SpeechStartedEvent is emitted when the detector observes speech onset.
type SpeechStartedEvent struct{}

func (e *SpeechStartedEvent) EventType() string { return "speech.started" }

// SilenceCountdownEvent is emitted while listening as the auto-submit
// countdown changes.
type SilenceCountdownEvent struct {
	SecondsLeft     int     `json:"seconds_left"`
	SilenceDuration float64 `json:"silence_duration_seconds"`
}

func (e *SilenceCountdownEvent) EventType() string { return "silence.countdown" }

// TranscriptDeltaEvent is emitted as transcription updates arrive.
type TranscriptDeltaEvent struct {
	Delta   string `json:"delta"`
	IsFinal bool   `json:"is_final,omitempty"`
}

func (e *TranscriptDeltaEvent) EventType() string { return "transcript.delta" }

// AnswerSubmittedEvent is emitted exactly once per question when the answer
// is committed.
type AnswerSubmittedEvent struct {
	QuestionID    string `json:"question_id"`
	ResponseID    string `json:"response_id"`
	AutoSubmitted bool   `json:"auto_submitted"`
	Skipped       bool   `json:"skipped,omitempty"`
}

func (e *AnswerSubmittedEvent) EventType() string { return "answer.submitted" }

// FeedbackEvent carries the analyzer's judgment for the last answer.
type FeedbackEvent struct {
	QuestionID string    `json:"question_id"`
	Feedback   *Feedback `json:"feedback"`
}

func (e *FeedbackEvent) EventType() string { return "feedback" }

// ReviewPromptEvent presents one structured-answer review prompt.
type ReviewPromptEvent struct {
	QuestionID string `json:"question_id"`
	Prompt     string `json:"prompt"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
}

func (e *ReviewPromptEvent) EventType() string { return "review.prompt" }

// FollowUpEvent presents a generated follow-up question.
type FollowUpEvent struct {
	QuestionID string            `json:"question_id"`
	FollowUp   *FollowUpQuestion `json:"follow_up"`
}

func (e *FollowUpEvent) EventType() string { return "follow_up" }

// TimeTickEvent is emitted once per second with the session time remaining.
type TimeTickEvent struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

func (e *TimeTickEvent) EventType() string { return "time.tick" }

// IntegrityViolationEvent is emitted when the monitor records a violation.
type IntegrityViolationEvent struct {
	Kind           ViolationKind `json:"kind"`
	ViolationCount int           `json:"violation_count"`
}

func (e *IntegrityViolationEvent) EventType() string { return "integrity.violation" }

// SessionPausedEvent is emitted when an integrity signal pauses the session.
type SessionPausedEvent struct {
	Kind ViolationKind `json:"kind"`
}

func (e *SessionPausedEvent) EventType() string { return "session.paused" }

// SessionResumedEvent is emitted when the user resumes after a pause.
type SessionResumedEvent struct {
	PausedSeconds int `json:"paused_seconds"`
}

func (e *SessionResumedEvent) EventType() string { return "session.resumed" }

// FullscreenRequestEvent asks the hosting runtime to enter fullscreen.
type FullscreenRequestEvent struct{}

func (e *FullscreenRequestEvent) EventType() string { return "fullscreen.request" }

// FullscreenExitRequestEvent asks the hosting runtime to leave fullscreen.
type FullscreenExitRequestEvent struct{}

func (e *FullscreenExitRequestEvent) EventType() string { return "fullscreen.exit_request" }

// SnapshotSavedEvent is emitted after each successful autosave.
type SnapshotSavedEvent struct {
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
}

func (e *SnapshotSavedEvent) EventType() string { return "snapshot.saved" }

// RecoveryOfferedEvent is emitted when a recoverable snapshot exists for the
// user and the client must accept or decline.
type RecoveryOfferedEvent struct {
	SessionID    string    `json:"session_id"`
	CurrentIndex int       `json:"current_index"`
	LastSaved    time.Time `json:"last_saved"`
}

func (e *RecoveryOfferedEvent) EventType() string { return "recovery.offered" }

// SessionCompletedEvent is emitted exactly once when the session terminates.
type SessionCompletedEvent struct {
	SessionID string   `json:"session_id"`
	Reason    string   `json:"reason"`
	Summary   *Summary `json:"summary"`
}

func (e *SessionCompletedEvent) EventType() string { return "session.completed" }

// ErrorEvent is emitted when an error occurs.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// DebugEvent is emitted for debugging information.
type DebugEvent struct {
	Category string `json:"category"` // AUDIO, SILENCE, INTEGRITY, NARRATE, STT, SAVE, SESSION
	Message  string `json:"message"`
}

func (e *DebugEvent) EventType() string { return "debug" }
