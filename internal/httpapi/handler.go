// Package httpapi is the gin surface over scan ingestion, uploads and
// reporting.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/apperror"
	"rollcall/internal/attendance"
	"rollcall/internal/objectstore"
	"rollcall/internal/queue"
	"rollcall/internal/report"
	"rollcall/internal/response"
	"rollcall/internal/upload"
)

// ObjectReceiver accepts uploads made with a grant this process issued.
type ObjectReceiver interface {
	Verify(token, key string) (objectstore.GrantClaims, error)
	Put(ctx context.Context, key string, body io.Reader) error
	Bucket() string
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps wires the handler. Objects is nil when uploads go straight to an
// external store; Metrics is nil when metrics are not exposed.
type Deps struct {
	Scans   *attendance.Service
	Reports *report.Service
	Issuer  *upload.Issuer
	Objects ObjectReceiver
	Queue   queue.Queue
	Health  map[string]HealthCheck
	Metrics http.Handler
	Logger  *zap.Logger
}

type Handler struct {
	scans   *attendance.Service
	reports *report.Service
	issuer  *upload.Issuer
	objects ObjectReceiver
	queue   queue.Queue
	health  map[string]HealthCheck
	metrics http.Handler
	log     *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		scans:   d.Scans,
		reports: d.Reports,
		issuer:  d.Issuer,
		objects: d.Objects,
		queue:   d.Queue,
		health:  d.Health,
		metrics: d.Metrics,
		log:     d.Logger.Named("httpapi"),
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	v1 := r.Group("/v1")
	v1.POST("/uploads/presign", h.Presign)
	v1.POST("/uploads/notify", h.Notify)
	if h.objects != nil {
		v1.PUT("/objects/*key", h.PutObject)
	}
	v1.POST("/scans", h.RecordScan)
	v1.GET("/scans", h.EntryLogs)
	v1.GET("/results", h.Results)
	v1.GET("/analytics", h.Analytics)
}

// Healthz answers 200 when every dependency is reachable, 503 otherwise.
func (h *Handler) Healthz(c *gin.Context) {
	checks := make(map[string]bool, len(h.health))
	healthy := true
	for name, check := range h.health {
		ok := check(c.Request.Context())
		checks[name] = ok
		healthy = healthy && ok
	}
	if !healthy {
		response.Error(c, http.StatusServiceUnavailable, apperror.CodeServiceUnavailable, "dependency unavailable", checks)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	if httpErr.HTTPStatus >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", httpErr.Code),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	response.Error(c, httpErr.HTTPStatus, httpErr.Code, httpErr.Message, httpErr.Details)
}
