package scans

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

// Sweeper periodically reconciles in-flight scans so results land even when
// nobody polls. Reconcile on read stays the source of truth.
type Sweeper struct {
	Service     *Service
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

type SweepReport struct {
	Checked int `json:"checked"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
}

// RunOnce reconciles up to BatchSize in-flight records.
func (w *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	batch := w.BatchSize
	if batch <= 0 {
		batch = 100
	}
	conc := w.Concurrency
	if conc <= 0 {
		conc = 4
	}

	records, err := w.Service.Repo.ListInFlight(ctx, batch)
	if err != nil {
		return SweepReport{}, err
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Checked: len(records)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for _, r := range records {
		r := r // per-iteration copy for go < 1.22 loop semantics
		g.Go(func() error {
			out, err := w.Service.reconcile(gctx, r)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				log.WithError(err).WithField("scan_id", r.ID).Warn("sweep reconcile failed")
				return nil
			}
			if out.ScanStatus.IsTerminal() {
				report.Settled++
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, ctx.Err()
}

// Run sweeps every Interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := w.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Error("sweep failed")
				continue
			}
			if report.Checked > 0 {
				log.WithFields(log.Fields{
					"checked": report.Checked,
					"settled": report.Settled,
					"failed":  report.Failed,
				}).Info("sweep finished")
			}
		}
	}
}
