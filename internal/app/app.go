// Package app builds the dependency graph shared by the api and worker
// binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/metrics"
	"rollcall/internal/objectstore"
	"rollcall/internal/queue"
	"rollcall/internal/store"
	"rollcall/internal/upload"
)

// App holds the constructed collaborators. DB, Redis and Local are nil when
// the configured backends do not need them.
type App struct {
	Config   config.App
	Log      *zap.Logger
	Repo     *attendance.Repository
	DB       *store.DB
	Redis    *store.Redis
	Queue    queue.Queue
	Objects  objectstore.Store
	Local    *objectstore.Local
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

// NewLogger returns a production logger in production and a development
// logger otherwise.
func NewLogger(cfg config.App) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// New connects every backend named by cfg. On error, whatever was opened
// is closed again.
func New(ctx context.Context, cfg config.App, logger *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: logger, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	backend, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Repo = attendance.NewRepository(backend)

	if err := a.openQueue(); err != nil {
		return nil, err
	}
	if err := a.openObjects(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Backend, error) {
	cfg := a.Config
	if cfg.StoreBackend == "memory" {
		a.Log.Warn("using in-memory record store, data is lost on exit")
		return store.NewMemory(), nil
	}
	db, err := store.NewDB(ctx, store.Dialect(cfg.StoreBackend), cfg.DatabaseURL)
	if db != nil {
		a.closers = append(a.closers, db.Close)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.StoreBackend, err)
	}
	a.DB = db
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db.Client); err != nil {
			return nil, err
		}
	}
	return db.Backend(), nil
}

func (a *App) openQueue() error {
	cfg := a.Config
	switch cfg.QueueBackend {
	case "memory":
		a.Queue = queue.NewInMemory(64)
	case "redis":
		a.Redis = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, a.Redis.Close)
		a.Queue = queue.NewRedisQueue(a.Redis.Client, cfg.QueueKey, a.Log)
	case "kafka":
		q, closeFn := queue.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, a.Log)
		a.closers = append(a.closers, closeFn)
		a.Queue = q
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
	return nil
}

func (a *App) openObjects() error {
	cfg := a.Config
	switch cfg.ObjectStore {
	case "local":
		local, err := objectstore.NewLocal(cfg.LocalObjectDir, cfg.LocalBucket, cfg.PublicBaseURL, cfg.UploadIssuer, cfg.UploadSigningKey)
		if err != nil {
			return err
		}
		a.Local, a.Objects = local, local
	case "cloudinary":
		a.Objects = objectstore.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		a.Log.Info("cloudinary configured", zap.String("cloud_name", cfg.CloudinaryCloudName))
	default:
		return fmt.Errorf("unknown object store %q", cfg.ObjectStore)
	}
	return nil
}

// Processor builds the upload processor over the configured store and Ledger.
func (a *App) Processor() *upload.Processor {
	reconciler := attendance.NewReconciler(a.Repo, a.Metrics, a.Log)
	return upload.NewProcessor(a.Objects, reconciler, a.Metrics, a.Log)
}

// HealthChecks lists the dependency checks served by /healthz.
func (a *App) HealthChecks() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if a.DB != nil {
		checks["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}
	return checks
}

// MetricsHandler serves the app registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry})
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Log.Warn("close backends", zap.Error(err))
	}
}
