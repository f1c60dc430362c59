package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/app"
	"rollcall/internal/apperror"
	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/report"
	"rollcall/internal/upload"
	"rollcall/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	apperror.Init()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// memory queue only reaches a worker in this process
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := worker.Run(ctx, a.Queue, a.Processor(), logger); err != nil {
				logger.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	}

	h := httpapi.NewHandler(httpapi.Deps{
		Scans:   attendance.NewService(a.Repo, a.Metrics, logger),
		Reports: report.NewService(a.Repo, logger),
		Issuer:  upload.NewIssuer(a.Objects, logger),
		Objects: localReceiver(a),
		Queue:   a.Queue,
		Health:  a.HealthChecks(),
		Metrics: a.MetricsHandler(),
		Logger:  logger,
	})

	r := gin.New()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(logger),
		httpmiddleware.AccessLog(logger, "/healthz", "/metrics"),
		a.Metrics.Middleware(),
		httpmiddleware.CORS(),
		httpmiddleware.SecurityHeaders(),
		httpmiddleware.NewIPRateLimiter(cfg.RateLimitPerMin).GinMiddleware(),
	)
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// localReceiver avoids handing the handler a typed nil when uploads go to
// Cloudinary.
func localReceiver(a *app.App) httpapi.ObjectReceiver {
	if a.Local == nil {
		return nil
	}
	return a.Local
}
