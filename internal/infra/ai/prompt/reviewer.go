package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stagepass/audioscan/internal/domain/scans"
)

const maxRawResult = 4000

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You assist a music distribution moderation team. A detector has scored an uploaded track for AI-generated audio.
You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below.

Requirements:
- suggested_decision is one of: approved, rejected, unsure.
- approved means the track looks human-made and the flag is likely a false positive.
- rejected means the evidence supports AI generation.
- Use unsure whenever the evidence is thin; the admin always decides.
- checks lists short, concrete things the admin should verify by ear or in metadata.

Schema (example with empty values):
{
  "suggested_decision": "<approved|rejected|unsure>",
  "rationale": "<string>",
  "checks": ["<string>"]
}`
}

// GetUserPrompt builds a compact user message from the detector verdict.
func GetUserPrompt(rec *scans.ScanRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scan %s for track %s (release %s).\n", rec.ID, rec.TrackID, rec.ReleaseID)
	fmt.Fprintf(&b, "Status: %s\n", rec.ScanStatus)
	if rec.AIDetected != nil {
		fmt.Fprintf(&b, "AI detected: %t\n", *rec.AIDetected)
	}
	if rec.AIConfidence != nil {
		fmt.Fprintf(&b, "Confidence: %s%%\n", scans.FormatConfidence(*rec.AIConfidence))
	}
	if rec.ModelSignature != nil {
		fmt.Fprintf(&b, "Model signature: %s\n", *rec.ModelSignature)
	}
	if rec.FlaggedReason != "" {
		fmt.Fprintf(&b, "Flagged reason: %s\n", rec.FlaggedReason)
	}
	if len(rec.RawResult) > 0 {
		raw := compact(rec.RawResult)
		if len(raw) > maxRawResult {
			raw = raw[:maxRawResult] + "..."
		}
		fmt.Fprintf(&b, "Raw detector payload: %s\n", raw)
	}
	b.WriteString("Respond with the JSON per schema.")
	return b.String()
}

// Suggestion matches the schema used by the system prompt.
type Suggestion struct {
	SuggestedDecision string   `json:"suggested_decision"`
	Rationale         string   `json:"rationale"`
	Checks            []string `json:"checks"`
}

// ParseSuggestion decodes a model answer, tolerating code fences around the object.
func ParseSuggestion(answer string) (Suggestion, error) {
	var s Suggestion
	body := strings.TrimSpace(answer)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &s); err != nil {
		return s, fmt.Errorf("decoding suggestion: %w", err)
	}
	switch d := strings.ToLower(strings.TrimSpace(s.SuggestedDecision)); d {
	case "approved", "approve":
		s.SuggestedDecision = "approved"
	case "rejected", "reject":
		s.SuggestedDecision = "rejected"
	default:
		s.SuggestedDecision = "unsure"
	}
	return s, nil
}

func compact(raw json.RawMessage) string {
	var buf strings.Builder
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return string(raw)
	}
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if enc.Encode(v) != nil {
		return string(raw)
	}
	return strings.TrimSpace(buf.String())
}
