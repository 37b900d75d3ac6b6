package scans

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSweeperRunOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var recs []*domain.ScanRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, h.submit(t, fmt.Sprintf("trk-%d", i)))
	}
	// three settle, two keep processing
	h.gateway.set(recs[0].ExternalJobID, completed(false, 1))
	h.gateway.set(recs[1].ExternalJobID, completed(false, 4))
	h.gateway.set(recs[2].ExternalJobID, completed(true, 97, "udio"))

	w := &Sweeper{Service: h.svc, BatchSize: 10, Concurrency: 2}
	report, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 5, Settled: 3}, report)
	assert.Equal(t, domain.ReleaseScanning, h.releaseStatus(t))

	h.gateway.set(recs[3].ExternalJobID, completed(false, 0))
	h.gateway.set(recs[4].ExternalJobID, completed(false, 0))
	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 2, Settled: 2}, report)
	assert.Equal(t, domain.ReleaseScanFlagged, h.releaseStatus(t))

	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

func TestSweeperBatchSize(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.submit(t, fmt.Sprintf("trk-%d", i))
	}

	w := &Sweeper{Service: h.svc, BatchSize: 3}
	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 0, report.Settled)
}

func TestSweeperDetectorDown(t *testing.T) {
	h := newHarness(t)
	rec := h.submit(t, "trk-1")
	h.gateway.setFetchErr(errors.New("connection reset"))

	w := &Sweeper{Service: h.svc}
	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	// fetch failures keep the record as-is and are not store failures
	assert.Equal(t, SweepReport{Checked: 1}, report)

	got, err := h.svc.Get(context.Background(), owner, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanProcessing, got.ScanStatus)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	rec := h.submit(t, "trk-1")
	h.gateway.set(rec.ExternalJobID, completed(false, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := &Sweeper{Service: h.svc, Interval: 5 * time.Millisecond}
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, err := h.store.ReleaseStatus(context.Background(), "rel-1")
		return err == nil && st == domain.ReleaseScanPassed
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
