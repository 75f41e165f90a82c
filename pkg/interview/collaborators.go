package interview

import (
	"context"
)

// QuestionProvider supplies the ordered question list before the session
// starts. The list is treated as opaque: the orchestrator never reorders or
// filters it. The same config and profile must yield the same list, which is
// what makes recovery deterministic.
type QuestionProvider interface {
	GenerateQuestions(ctx context.Context, config SessionConfig, profile CandidateProfile) ([]Question, error)
}

// FeedbackAnalyzer is the scored-judgment oracle consumed after each answer.
type FeedbackAnalyzer interface {
	// Analyze scores a submitted answer.
	Analyze(ctx context.Context, question Question, answer string) (*Feedback, error)

	// AnalyzeFollowUp returns a follow-up question, or nil when the answer
	// needs none.
	AnalyzeFollowUp(ctx context.Context, question Question, answer string, profile CandidateProfile) (*FollowUpQuestion, error)

	// GenerateReviewPrompts returns ordered review prompts for a
	// structured answer.
	GenerateReviewPrompts(ctx context.Context, structuredAnswer, language string, question Question) ([]string, error)
}

// Narrator speaks question text to the candidate.
type Narrator interface {
	// Speak narrates text. It returns once playback has begun; completion
	// is not awaited because listening starts on a fixed lead-in instead.
	Speak(ctx context.Context, text string) error

	// Pause suspends narration in progress.
	Pause()

	// Resume continues paused narration.
	Resume()

	// Stop cancels narration entirely.
	Stop()
}

// Transcriber converts candidate audio into text.
type Transcriber interface {
	// Start begins transcription. Partial and final callbacks may be
	// invoked from any goroutine until Stop returns.
	Start(ctx context.Context, onPartial, onFinal func(text string), onError func(err error)) error

	// Write feeds PCM audio into the transcriber.
	Write(pcm []byte) error

	// Stop ends transcription and releases the audio reference.
	Stop()
}

// Recorder captures the candidate's media for the external answer store.
// The orchestrator owns the live stream; the recorder holds a reference for
// the duration of each listening stage and must release it in Stop.
type Recorder interface {
	// Start begins recording for one question.
	Start(ctx context.Context, sessionID, questionID string) error

	// Write feeds PCM audio into the recording.
	Write(pcm []byte) error

	// Stop finalizes the recording and hands it to the external store.
	Stop() error
}

// CompletionSink is invoked exactly once when a session terminates.
type CompletionSink interface {
	OnComplete(sessionID string, summary *Summary)
}

// CompletionFunc adapts a function to the CompletionSink interface.
type CompletionFunc func(sessionID string, summary *Summary)

// OnComplete implements CompletionSink.
func (f CompletionFunc) OnComplete(sessionID string, summary *Summary) { f(sessionID, summary) }
