package interview

import (
	"time"
)

// Question is an immutable interview question supplied by the question
// provider before the session starts.
type Question struct {
	ID                       string `json:"id"`
	Order                    int    `json:"order"`
	Text                     string `json:"text"`
	Category                 string `json:"category"`
	Difficulty               string `json:"difficulty"`
	RequiresStructuredAnswer bool   `json:"requires_structured_answer"`
	RelatedTopic             string `json:"related_topic,omitempty"`
}

// Session is the mutable session record. It is owned exclusively by the
// orchestrator; no other component writes to it.
type Session struct {
	ID                        string     `json:"id"`
	UserID                    string     `json:"user_id"`
	SessionType               string     `json:"session_type"`
	Questions                 []Question `json:"questions"`
	CurrentIndex              int        `json:"current_index"`
	TimeRemainingSeconds      int        `json:"time_remaining_seconds"`
	Stage                     Stage      `json:"stage"`
	ViolationCount            int        `json:"violation_count"`
	TotalViolationTimeSeconds int        `json:"total_violation_time_seconds"`
	StartedAt                 time.Time  `json:"started_at"`
}

// CurrentQuestion returns the question at CurrentIndex, or nil if the
// question list is exhausted.
func (s *Session) CurrentQuestion() *Question {
	if s == nil || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentIndex]
}

// Response records the answer to a single question. It is created exactly
// once per question when that question's answer is submitted and is
// immutable afterward.
type Response struct {
	ID                     string    `json:"id"`
	QuestionID             string    `json:"question_id"`
	FreeformAnswer         string    `json:"freeform_answer,omitempty"`
	StructuredAnswer       string    `json:"structured_answer,omitempty"`
	Language               string    `json:"language,omitempty"`
	DurationSeconds        int       `json:"duration_seconds"`
	AutoSubmitted          bool      `json:"auto_submitted"`
	Skipped                bool      `json:"skipped,omitempty"`
	SilenceDurationSeconds float64   `json:"silence_duration_seconds,omitempty"`
	SubmittedAt            time.Time `json:"submitted_at"`
}

// CandidateProfile describes the candidate, used by the question provider
// and follow-up analyzer.
type CandidateProfile struct {
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role,omitempty"`
	Seniority string   `json:"seniority,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

// Feedback is the scored judgment returned by the feedback analyzer for a
// submitted answer.
type Feedback struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

// FollowUpQuestion is an ephemeral follow-up generated from a submitted
// answer. It exists only between submission and the next stage transition.
type FollowUpQuestion struct {
	Text         string `json:"text"`
	RelatedTopic string `json:"related_topic,omitempty"`
}

// FollowUpExchange records a follow-up question and its answer for the
// final summary.
type FollowUpExchange struct {
	QuestionID string `json:"question_id"`
	Prompt     string `json:"prompt"`
	Answer     string `json:"answer"`
}

// ReviewExchange records a structured-answer review prompt and its answer.
type ReviewExchange struct {
	QuestionID string `json:"question_id"`
	Prompt     string `json:"prompt"`
	Answer     string `json:"answer"`
}

// Summary is the final session report handed to the completion sink.
type Summary struct {
	SessionID                 string             `json:"session_id"`
	UserID                    string             `json:"user_id"`
	DurationSeconds           int                `json:"duration_seconds"`
	Responses                 []Response         `json:"responses"`
	FollowUps                 []FollowUpExchange `json:"follow_ups,omitempty"`
	Reviews                   []ReviewExchange   `json:"reviews,omitempty"`
	Violations                []ViolationEvent   `json:"violations,omitempty"`
	ViolationCount            int                `json:"violation_count"`
	TotalViolationTimeSeconds int                `json:"total_violation_time_seconds"`
	Reason                    string             `json:"reason"`
}
