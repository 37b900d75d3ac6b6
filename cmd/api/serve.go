package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appscans "github.com/stagepass/audioscan/internal/application/scans"
	"github.com/stagepass/audioscan/internal/infra/httpserver"
	"github.com/stagepass/audioscan/internal/middleware"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	var releases []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the background sweeper when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, releases)
			if err != nil {
				return err
			}
			defer a.close()

			handler := httpserver.NewRouter(a.scans, a.ai, httpserver.Options{
				JWTSecret:      []byte(cfg.Auth.JWTSecret),
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Metrics:        a.metrics,
				Limiter:        middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL),
				Health:         a.health,
			})

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  60 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.WithField("addr", addr).Info("server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server: %w", err)
				}
				return nil
			})
			if cfg.Sweep.Enabled {
				sweeper := &appscans.Sweeper{
					Service:     a.scans,
					Interval:    cfg.Sweep.Interval,
					BatchSize:   cfg.Sweep.BatchSize,
					Concurrency: cfg.Sweep.Concurrency,
				}
				g.Go(func() error {
					log.WithField("interval", cfg.Sweep.Interval.String()).Info("sweeper started")
					return sweeper.Run(gctx)
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringArrayVar(&releases, "release", nil, "Seed a release for the memory driver as releaseID=artistID (repeatable)")
	return cmd
}
