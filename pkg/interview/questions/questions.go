// Package questions provides QuestionProvider implementations backed by a
// pre-authored question bank. Content generation happens upstream; this
// package only loads, filters, and orders.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/prepdeck/interviewd/pkg/interview"
)

// Bank is a question bank keyed by session type. The same config and
// profile always yield the same ordered list, which keeps snapshot
// recovery deterministic.
type Bank struct {
	byType map[string][]interview.Question
}

// LoadFile reads a JSON question bank of the form
// {"technical": [...], "behavioral": [...]}.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON question bank.
func Parse(data []byte) (*Bank, error) {
	var byType map[string][]interview.Question
	if err := json.Unmarshal(data, &byType); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	for sessionType, qs := range byType {
		for i, q := range qs {
			if strings.TrimSpace(q.ID) == "" {
				return nil, fmt.Errorf("question bank %q[%d]: missing id", sessionType, i)
			}
			if strings.TrimSpace(q.Text) == "" {
				return nil, fmt.Errorf("question bank %q[%d]: missing text", sessionType, i)
			}
		}
	}
	return &Bank{byType: byType}, nil
}

// GenerateQuestions implements interview.QuestionProvider. Questions are
// filtered by the profile's topics when set, and returned in bank order
// with Order reassigned to the filtered position.
func (b *Bank) GenerateQuestions(_ context.Context, config interview.SessionConfig, profile interview.CandidateProfile) ([]interview.Question, error) {
	all, ok := b.byType[config.SessionType]
	if !ok || len(all) == 0 {
		return nil, fmt.Errorf("no questions for session type %q", config.SessionType)
	}

	selected := make([]interview.Question, 0, len(all))
	for _, q := range all {
		if len(profile.Topics) > 0 && !matchesTopics(q, profile.Topics) {
			continue
		}
		q.Order = len(selected)
		selected = append(selected, q)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no questions for session type %q matching topics %v", config.SessionType, profile.Topics)
	}
	return selected, nil
}

func matchesTopics(q interview.Question, topics []string) bool {
	for _, topic := range topics {
		if strings.EqualFold(q.RelatedTopic, topic) || strings.EqualFold(q.Category, topic) {
			return true
		}
	}
	return false
}

// Static is a fixed-list provider, mostly useful for tests and local runs.
type Static struct {
	Questions []interview.Question
}

// GenerateQuestions implements interview.QuestionProvider.
func (s *Static) GenerateQuestions(context.Context, interview.SessionConfig, interview.CandidateProfile) ([]interview.Question, error) {
	out := make([]interview.Question, len(s.Questions))
	copy(out, s.Questions)
	for i := range out {
		out[i].Order = i
	}
	return out, nil
}
