package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/stagepass/audioscan/internal/application"
	appai "github.com/stagepass/audioscan/internal/application/ai"
	appscans "github.com/stagepass/audioscan/internal/application/scans"
	"github.com/stagepass/audioscan/internal/config"
	"github.com/stagepass/audioscan/internal/domain/scanerrors"
	domain "github.com/stagepass/audioscan/internal/domain/scans"
	openaiclient "github.com/stagepass/audioscan/internal/infra/ai/openai"
	"github.com/stagepass/audioscan/internal/infra/db/memory"
	mysqlp "github.com/stagepass/audioscan/internal/infra/db/mysql"
	"github.com/stagepass/audioscan/internal/infra/db/postgres"
	"github.com/stagepass/audioscan/internal/infra/detector"
	"github.com/stagepass/audioscan/internal/infra/messaging/rabbitmq"
	minioStore "github.com/stagepass/audioscan/internal/infra/storage"
	"github.com/stagepass/audioscan/internal/middleware"
)

// scanStore is what a database driver has to provide.
type scanStore interface {
	domain.Repository
	domain.OwnershipChecker
}

// app holds every wired dependency; close releases them in reverse order.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	scans   *appscans.Service
	ai      *appai.Service
	metrics *middleware.Metrics
	health  *middleware.Health
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}
}

// openStore connects the configured driver. seed registers releases for
// the memory driver, as "releaseID=artistID" pairs.
func openStore(ctx context.Context, cfg *config.Config, seed []string) (scanStore, scanerrors.Repository, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		return mysqlp.NewScanRepository(db), mysqlp.NewScanErrorRepository(db), db, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		return postgres.NewScanRepository(db), postgres.NewScanErrorRepository(db), db, nil
	case "memory":
		store := memory.NewStore()
		for _, pair := range seed {
			releaseID, artistID, ok := strings.Cut(pair, "=")
			if !ok || releaseID == "" || artistID == "" {
				return nil, nil, nil, fmt.Errorf("bad --release %q, want releaseID=artistID", pair)
			}
			store.AddRelease(releaseID, artistID)
		}
		log.WithField("releases", len(seed)).Warn("using in-memory store, data is lost on exit")
		return store, memory.NewScanErrorRepository(), nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func buildApp(ctx context.Context, cfg *config.Config, seed []string) (*app, error) {
	a := &app{cfg: cfg, health: &middleware.Health{}}

	store, errRepo, db, err := openStore(ctx, cfg, seed)
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.db = db
		a.closers = append(a.closers, db.Close)
		a.health.Add("database", middleware.PingDB(db), false)
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.metrics = metrics

	gateway := detector.NewClient(cfg.Detector.BaseURL, cfg.Detector.APIKey, cfg.Detector.Timeout)
	// reconcile tolerates detector outages, so this only degrades /health
	a.health.Add("detector", middleware.CheckFunc(gateway.Ping), true)

	svc := &appscans.Service{
		Repo:           store,
		Gateway:        gateway,
		Owners:         store,
		Clock:          application.SystemClock{},
		Errors:         errRepo,
		Metrics:        metrics,
		GatewayTimeout: cfg.Detector.Timeout,
	}

	if cfg.Minio.Enabled {
		objects, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
			cfg.Minio.PresignTTL,
		)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		svc.Audio = objects
		svc.Archive = objects
		a.health.Add("storage", middleware.CheckFunc(objects.Ping), false)
	}

	if cfg.RabbitMQ.URL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		svc.Events = pub
		a.closers = append(a.closers, pub.Close)
	} else {
		svc.Events = rabbitmq.Noop{}
	}
	a.scans = svc

	var aiClient *openaiclient.Client
	if cfg.OpenAI.APIKey != "" {
		aiClient = openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	if aiClient != nil {
		a.ai = appai.NewService(aiClient)
	} else {
		a.ai = appai.NewService(nil)
	}
	return a, nil
}
