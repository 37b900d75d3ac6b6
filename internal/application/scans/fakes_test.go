package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

type fakeGateway struct {
	mu         sync.Mutex
	seq        int
	submitErr  error
	fetchErr   error
	results    map[string]domain.AnalysisResult
	fetchCalls int
	submitted  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{results: map[string]domain.AnalysisResult{}}
}

func (g *fakeGateway) Submit(_ context.Context, audioURL string, _ domain.TrackMetadata) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.seq++
	g.submitted = append(g.submitted, audioURL)
	return fmt.Sprintf("job-%d", g.seq), nil
}

func (g *fakeGateway) FetchResult(_ context.Context, jobID string) (domain.AnalysisResult, json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchErr != nil {
		return domain.AnalysisResult{}, nil, g.fetchErr
	}
	res, ok := g.results[jobID]
	if !ok {
		res = domain.AnalysisResult{Status: domain.DetectorProcessing}
	}
	raw, _ := json.Marshal(res)
	return res, raw, nil
}

func (g *fakeGateway) set(jobID string, res domain.AnalysisResult) {
	g.mu.Lock()
	g.results[jobID] = res
	g.mu.Unlock()
}

func (g *fakeGateway) setFetchErr(err error) {
	g.mu.Lock()
	g.fetchErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls
}

func completed(detected bool, confidence float64, sigs ...string) domain.AnalysisResult {
	return domain.AnalysisResult{
		Status: domain.DetectorCompleted,
		Results: &domain.AnalysisPayload{AIGenerated: &domain.AIGenerated{
			Detected: detected, Confidence: confidence, ModelSignatures: sigs,
		}},
	}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.ReleaseStatusChanged
	err    error
}

func (f *fakeEvents) PublishReleaseStatus(_ context.Context, ev domain.ReleaseStatusChanged) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeEvents) targets() []domain.ReleaseStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ReleaseStatus, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.To)
	}
	return out
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeArchive) ArchiveResult(_ context.Context, key string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "s3://bucket/" + key, nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveAudio(_ context.Context, ref string) (string, error) {
	if ref == "bad" {
		return "", fmt.Errorf("object not found")
	}
	return "https://signed.example.com/" + ref, nil
}
