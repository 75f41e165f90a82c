package feedback

import (
	"context"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"score": 4}`, `{"score": 4}`},
		{"```json\n{\"score\": 4}\n```", `{"score": 4}`},
		{"```\n{\"score\": 4}\n```", `{"score": 4}`},
		{"  {\"score\": 4}  ", `{"score": 4}`},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewGeminiAnalyzerRequiresKey(t *testing.T) {
	if _, err := NewGeminiAnalyzer(context.Background(), "", "model"); err == nil {
		t.Error("Expected error for missing api key")
	}
}
