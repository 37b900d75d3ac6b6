package scans

// DetectorStatus is the job state reported by the external detector.
type DetectorStatus string

const (
	DetectorProcessing DetectorStatus = "processing"
	DetectorCompleted  DetectorStatus = "completed"
	DetectorFailed     DetectorStatus = "failed"
)

// AnalysisResult is the decoded detector response for one job.
type AnalysisResult struct {
	Status  DetectorStatus   `json:"status"`
	Results *AnalysisPayload `json:"results,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type AnalysisPayload struct {
	AIGenerated *AIGenerated `json:"ai_generated,omitempty"`
}

type AIGenerated struct {
	Detected        bool     `json:"detected"`
	Confidence      float64  `json:"confidence"`
	ModelSignatures []string `json:"ai_model_signatures"`
}

func (a AnalysisResult) aiGenerated() AIGenerated {
	if a.Results == nil || a.Results.AIGenerated == nil {
		return AIGenerated{}
	}
	return *a.Results.AIGenerated
}

// Settled reports whether the result carries a verdict worth persisting.
// A still-processing job without a detection leaves the record in flight.
func (a AnalysisResult) Settled() bool {
	if a.aiGenerated().Detected {
		return true
	}
	return a.Status == DetectorCompleted || a.Status == DetectorFailed
}

func (s DetectorStatus) Valid() bool {
	switch s {
	case DetectorProcessing, DetectorCompleted, DetectorFailed:
		return true
	}
	return false
}
