package scans

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlaggedReason is the human-readable explanation stored on a flagged record.
func FlaggedReason(confidence float64) string {
	return fmt.Sprintf("AI-generated music detected (%s%% confidence)", FormatConfidence(confidence))
}

// FormatConfidence renders a percentage without trailing zeros: 92, 87.5.
func FormatConfidence(confidence float64) string {
	return strconv.FormatFloat(confidence, 'f', -1, 64)
}

// Classify applies a settled detector result to a copy of rec and returns it.
// rec itself is not modified. Terminal records are returned unchanged.
func Classify(rec *ScanRecord, res AnalysisResult, raw json.RawMessage, now time.Time) *ScanRecord {
	out := rec.Clone()
	if rec.ScanStatus.IsTerminal() || !res.Settled() {
		return out
	}

	ai := res.aiGenerated()
	out.AIDetected = ptr(ai.Detected)
	out.AIConfidence = ptr(ai.Confidence)
	out.ModelSignature = nil
	if len(ai.ModelSignatures) > 0 {
		out.ModelSignature = ptr(ai.ModelSignatures[0])
	}
	out.ScanPassed = ptr(!ai.Detected && res.Status == DetectorCompleted)

	switch {
	case ai.Detected:
		out.ScanStatus = ScanFlagged
		out.FlaggedReason = FlaggedReason(ai.Confidence)
	case res.Status == DetectorFailed:
		out.ScanStatus = ScanFailed
		out.FlaggedReason = res.Error
		if out.FlaggedReason == "" {
			out.FlaggedReason = "detector reported failure"
		}
	default:
		out.ScanStatus = ScanCompleted
	}
	// an earlier admin decision outranks the detector, but only on a flag
	if out.ScanStatus == ScanFlagged && rec.AdminReviewed && rec.AdminDecision != nil {
		out.ScanPassed = ptr(*rec.AdminDecision == DecisionApproved)
	}

	if len(raw) > 0 {
		out.RawResult = append(json.RawMessage(nil), raw...)
	}
	out.UpdatedAt = now
	return out
}
