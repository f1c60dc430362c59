package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/apperror"
	"rollcall/internal/objectstore"
	"rollcall/internal/response"
	"rollcall/internal/upload"
	"rollcall/internal/worker"
)

// Presign issues an upload grant for a dated roster.
func (h *Handler) Presign(c *gin.Context) {
	var req upload.PresignRequest
	if err := decodeBody(c.Request, &req); err != nil {
		h.writeError(c, err)
		return
	}
	out, err := h.issuer.Issue(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Notify accepts a storage notification and queues every object it names.
func (h *Handler) Notify(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.writeError(c, apperror.Validation("unreadable request body", nil))
		return
	}
	refs, err := upload.DecodeNotifications(raw)
	if err != nil {
		h.writeError(c, apperror.Validation("notification names no uploaded object", err.Error()))
		return
	}
	h.enqueue(c, refs)
}

// PutObject receives an upload made against a locally issued grant.
func (h *Handler) PutObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	claims, err := h.objects.Verify(c.Query("token"), key)
	if err != nil {
		h.log.Warn("upload grant rejected", zap.String("object_key", key), zap.Error(err))
		response.Error(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "upload grant is invalid or expired", nil)
		return
	}
	if claims.ContentType != "" && !sameMediaType(claims.ContentType, c.GetHeader("Content-Type")) {
		h.writeError(c, apperror.Validation("content type does not match the upload grant",
			map[string]string{"expected": claims.ContentType}))
		return
	}

	if err := h.objects.Put(c.Request.Context(), key, c.Request.Body); err != nil {
		if errors.Is(err, objectstore.ErrTooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, apperror.CodeValidation,
				"object exceeds the upload size limit", map[string]int{"max_bytes": objectstore.MaxObjectSize})
			return
		}
		h.writeError(c, err)
		return
	}
	h.log.Info("object stored", zap.String("object_key", key))
	h.enqueue(c, []upload.ObjectRef{{Bucket: h.objects.Bucket(), Key: key}})
}

func (h *Handler) enqueue(c *gin.Context, refs []upload.ObjectRef) {
	ids, err := worker.Enqueue(c.Request.Context(), h.queue, refs)
	if err != nil {
		h.writeError(c, apperror.Wrap(err, apperror.CodeServiceUnavailable,
			"upload queue is unavailable, retry later", http.StatusServiceUnavailable))
		return
	}
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = r.Key
	}
	response.Success(c, http.StatusAccepted, gin.H{"queued": len(ids), "job_ids": ids, "object_keys": keys})
}

func sameMediaType(a, b string) bool {
	ma, _, errA := mime.ParseMediaType(a)
	mb, _, errB := mime.ParseMediaType(b)
	return errA == nil && errB == nil && strings.EqualFold(ma, mb)
}
