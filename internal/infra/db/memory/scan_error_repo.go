package memory

import (
	"context"
	"sync"

	domain "github.com/stagepass/audioscan/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	mu     sync.Mutex
	nextID int64
	items  []*domain.ScanError
}

func NewScanErrorRepository() *ScanErrorRepository { return &ScanErrorRepository{} }

func (r *ScanErrorRepository) Save(_ context.Context, e *domain.ScanError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *e
	cp.ID = r.nextID
	e.ID = cp.ID
	r.items = append(r.items, &cp)
	return nil
}

func (r *ScanErrorRepository) ListByScan(_ context.Context, scanID string, limit int) ([]*domain.ScanError, error) {
	return r.list(func(e *domain.ScanError) bool { return e.ScanID == scanID }, limit), nil
}

func (r *ScanErrorRepository) ListByRelease(_ context.Context, releaseID string, limit int) ([]*domain.ScanError, error) {
	return r.list(func(e *domain.ScanError) bool { return e.ReleaseID == releaseID }, limit), nil
}

// newest first
func (r *ScanErrorRepository) list(keep func(*domain.ScanError) bool, limit int) []*domain.ScanError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := make([]*domain.ScanError, 0)
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(r.items[i]) {
			cp := *r.items[i]
			out = append(out, &cp)
		}
	}
	return out
}
