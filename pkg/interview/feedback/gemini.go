// Package feedback provides the Gemini-backed feedback analyzer.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/prepdeck/interviewd/pkg/interview"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// GeminiAnalyzer implements interview.FeedbackAnalyzer over the Gemini API.
// Every method degrades to a nil result on malformed model output so a bad
// generation never stalls the session.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer creates an analyzer with its own Gemini client.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAnalyzer{client: client, model: model}, nil
}

type feedbackOutput struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

// Analyze implements interview.FeedbackAnalyzer.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, question interview.Question, answer string) (*interview.Feedback, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(`You are an interview coach. Score the candidate's answer from 1 (poor) to 5 (excellent) and summarize in at most two sentences.

Question: %s
Answer: %s

Respond with JSON only: {"score": <1-5>, "summary": "<text>"}`, question.Text, answer)

	text, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var out feedbackOutput
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return nil, fmt.Errorf("parse feedback output: %w", err)
	}
	if out.Score < 1 || out.Score > 5 {
		return nil, fmt.Errorf("feedback score %d out of range", out.Score)
	}
	return &interview.Feedback{Score: out.Score, Summary: out.Summary}, nil
}

type followUpOutput struct {
	FollowUp     string `json:"follow_up"`
	RelatedTopic string `json:"related_topic"`
}

// AnalyzeFollowUp implements interview.FeedbackAnalyzer. A "none" decision
// from the model returns nil, nil.
func (a *GeminiAnalyzer) AnalyzeFollowUp(ctx context.Context, question interview.Question, answer string, profile interview.CandidateProfile) (*interview.FollowUpQuestion, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, nil
	}

	role := profile.Role
	if role == "" {
		role = "software engineer"
	}
	prompt := fmt.Sprintf(`You are interviewing a %s. Decide whether the answer below warrants one probing follow-up question. Most answers need none.

Question: %s
Answer: %s

Respond with JSON only. No follow-up: {"follow_up": ""}. Otherwise: {"follow_up": "<question>", "related_topic": "<topic>"}`, role, question.Text, answer)

	text, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var out followUpOutput
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return nil, fmt.Errorf("parse follow-up output: %w", err)
	}
	if strings.TrimSpace(out.FollowUp) == "" {
		return nil, nil
	}
	return &interview.FollowUpQuestion{
		Text:         out.FollowUp,
		RelatedTopic: out.RelatedTopic,
	}, nil
}

type reviewOutput struct {
	Prompts []string `json:"prompts"`
}

// GenerateReviewPrompts implements interview.FeedbackAnalyzer.
func (a *GeminiAnalyzer) GenerateReviewPrompts(ctx context.Context, structuredAnswer, language string, question interview.Question) ([]string, error) {
	if strings.TrimSpace(structuredAnswer) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(`Review this %s solution and produce up to 3 short verbal review questions probing the candidate's understanding of their own code (complexity, trade-offs, edge cases).

Problem: %s

Code:
%s

Respond with JSON only: {"prompts": ["<q1>", "<q2>"]}`, language, question.Text, structuredAnswer)

	text, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var out reviewOutput
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return nil, fmt.Errorf("parse review output: %w", err)
	}
	if len(out.Prompts) > 3 {
		out.Prompts = out.Prompts[:3]
	}
	return out.Prompts, nil
}

func (a *GeminiAnalyzer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}

// stripFences removes a markdown code fence the model sometimes wraps JSON
// in despite the response MIME type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
