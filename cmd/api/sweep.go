package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	appscans "github.com/stagepass/audioscan/internal/application/scans"
)

func newSweepCommand(cc *commandContext) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile in-flight scans once (cron friendly)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}

			// satu sweep saja per host
			lock := flock.New(cfg.Sweep.LockFile)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another sweep is already running")
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					log.WithError(err).Warn("failed to release sweep lock")
				}
			}()

			a, err := buildApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.close()

			if batch <= 0 {
				batch = cfg.Sweep.BatchSize
			}
			w := &appscans.Sweeper{Service: a.scans, BatchSize: batch, Concurrency: cfg.Sweep.Concurrency}
			report, err := w.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "Max records to reconcile (default sweep.batchSize)")
	return cmd
}
