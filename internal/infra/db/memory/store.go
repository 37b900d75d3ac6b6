// Package memory is an in-process scan record store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

type release struct {
	artistID string
	status   domain.ReleaseStatus
}

// Store keeps everything behind one RWMutex. InTx holds the write lock for
// the whole callback and only publishes staged writes when fn succeeds.
type Store struct {
	mu       sync.RWMutex
	records  map[domain.ScanID]*domain.ScanRecord
	releases map[string]*release
}

func NewStore() *Store {
	return &Store{
		records:  make(map[domain.ScanID]*domain.ScanRecord),
		releases: make(map[string]*release),
	}
}

// AddRelease registers a release owned by artistID. Releases live outside
// this subsystem; the store only needs owner and status.
func (s *Store) AddRelease(releaseID, artistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.releases[releaseID]; ok {
		r.artistID = artistID
		return
	}
	s.releases[releaseID] = &release{artistID: artistID}
}

func (s *Store) ReleaseOwner(_ context.Context, releaseID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.releases[releaseID]
	if !ok {
		return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
	}
	return r.artistID, nil
}

func (s *Store) ReleaseStatus(_ context.Context, releaseID string) (domain.ReleaseStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.releases[releaseID]
	if !ok {
		return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
	}
	return r.status, nil
}

func (s *Store) Get(_ context.Context, id domain.ScanID) (*domain.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *Store) GetByJobID(_ context.Context, jobID string) (*domain.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ExternalJobID == jobID {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
}

func (s *Store) ListByRelease(_ context.Context, releaseID string) ([]*domain.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(r *domain.ScanRecord) bool { return r.ReleaseID == releaseID }, 0, false), nil
}

func (s *Store) ListFlagged(_ context.Context, reviewed *bool, limit int) ([]*domain.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(r *domain.ScanRecord) bool {
		if r.ScanStatus != domain.ScanFlagged {
			return false
		}
		return reviewed == nil || r.AdminReviewed == *reviewed
	}, limit, true), nil
}

func (s *Store) ListInFlight(_ context.Context, limit int) ([]*domain.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(r *domain.ScanRecord) bool {
		return r.ScanStatus == domain.ScanPending || r.ScanStatus == domain.ScanProcessing
	}, limit, false), nil
}

// filter must be called with mu held. Results are ordered by created_at.
func (s *Store) filter(keep func(*domain.ScanRecord) bool, limit int, newestFirst bool) []*domain.ScanRecord {
	out := make([]*domain.ScanRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		records:  make(map[domain.ScanID]*domain.ScanRecord),
		statuses: make(map[string]domain.ReleaseStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, r := range tx.records {
		s.records[id] = r
	}
	for id, st := range tx.statuses {
		s.releases[id].status = st
	}
	return nil
}

// memTx stages writes on top of the store; mu is already held.
type memTx struct {
	s        *Store
	records  map[domain.ScanID]*domain.ScanRecord
	statuses map[string]domain.ReleaseStatus
}

func (t *memTx) lookup(id domain.ScanID) (*domain.ScanRecord, bool) {
	if r, ok := t.records[id]; ok {
		return r, true
	}
	r, ok := t.s.records[id]
	return r, ok
}

func (t *memTx) Insert(_ context.Context, r *domain.ScanRecord) error {
	if _, ok := t.lookup(r.ID); ok {
		return fmt.Errorf("scan %s: %w", r.ID, domain.ErrConflict)
	}
	for _, existing := range t.s.records {
		if existing.ExternalJobID == r.ExternalJobID {
			return fmt.Errorf("job %s already recorded: %w", r.ExternalJobID, domain.ErrConflict)
		}
	}
	if _, ok := t.s.releases[r.ReleaseID]; !ok {
		return fmt.Errorf("release %s: %w", r.ReleaseID, domain.ErrNotFound)
	}
	t.records[r.ID] = r.Clone()
	return nil
}

func (t *memTx) LockRelease(_ context.Context, releaseID string) (domain.ReleaseStatus, error) {
	if st, ok := t.statuses[releaseID]; ok {
		return st, nil
	}
	r, ok := t.s.releases[releaseID]
	if !ok {
		return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
	}
	return r.status, nil
}

func (t *memTx) LockForUpdate(_ context.Context, id domain.ScanID) (*domain.ScanRecord, error) {
	r, ok := t.lookup(id)
	if !ok {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return r.Clone(), nil
}

func (t *memTx) Save(_ context.Context, r *domain.ScanRecord) error {
	if _, ok := t.lookup(r.ID); !ok {
		return fmt.Errorf("scan %s: %w", r.ID, domain.ErrNotFound)
	}
	t.records[r.ID] = r.Clone()
	return nil
}

func (t *memTx) ListByRelease(_ context.Context, releaseID string) ([]*domain.ScanRecord, error) {
	out := make([]*domain.ScanRecord, 0)
	for id, r := range t.s.records {
		if _, staged := t.records[id]; staged {
			continue
		}
		if r.ReleaseID == releaseID {
			out = append(out, r.Clone())
		}
	}
	for _, r := range t.records {
		if r.ReleaseID == releaseID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (t *memTx) SetReleaseStatus(_ context.Context, releaseID string, status domain.ReleaseStatus) error {
	if _, ok := t.s.releases[releaseID]; !ok {
		return fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
	}
	if !status.Valid() {
		return fmt.Errorf("invalid release status %q", status)
	}
	t.statuses[releaseID] = status
	return nil
}
