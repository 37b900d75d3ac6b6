package ai

import "context"

// Client sends one system + user prompt pair and returns the raw JSON answer.
type Client interface {
	Analyze(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ReviewSuggestion is an advisory verdict for a flagged scan. It is never persisted.
type ReviewSuggestion struct {
	ScanID            string   `json:"scan_id"`
	SuggestedDecision string   `json:"suggested_decision"` // approved | rejected | unsure
	Rationale         string   `json:"rationale"`
	Checks            []string `json:"checks,omitempty"`
}
