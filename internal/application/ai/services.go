package ai

import (
	"context"
	"fmt"

	"github.com/apex/log"

	"github.com/stagepass/audioscan/internal/domain/ai"
	"github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/infra/ai/prompt"
)

type Service struct {
	client ai.Client
}

// NewService accepts a nil client; Suggest then reports ai.ErrDisabled.
func NewService(client ai.Client) *Service {
	return &Service{client: client}
}

func (s *Service) Enabled() bool { return s != nil && s.client != nil }

// Suggest asks the model for an advisory verdict on rec. Nothing is written.
func (s *Service) Suggest(ctx context.Context, rec *scans.ScanRecord) (*ai.ReviewSuggestion, error) {
	if !s.Enabled() {
		return nil, ai.ErrDisabled
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: scan record is required", scans.ErrValidation)
	}

	answer, err := s.client.Analyze(ctx, prompt.GetSystemPrompt(), prompt.GetUserPrompt(rec))
	if err != nil {
		return nil, err
	}

	baseline := prompt.BaselineChecks(rec)
	parsed, err := prompt.ParseSuggestion(answer)
	if err != nil {
		// jawaban model rusak: tetap balikin checks lokal
		log.WithError(err).WithField("scan_id", rec.ID).Warn("unparseable review suggestion")
		return &ai.ReviewSuggestion{
			ScanID:            string(rec.ID),
			SuggestedDecision: "unsure",
			Rationale:         "The assistant answer could not be parsed.",
			Checks:            baseline,
		}, nil
	}

	return &ai.ReviewSuggestion{
		ScanID:            string(rec.ID),
		SuggestedDecision: parsed.SuggestedDecision,
		Rationale:         parsed.Rationale,
		Checks:            mergeChecks(baseline, parsed.Checks),
	}, nil
}

func mergeChecks(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
