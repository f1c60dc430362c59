package httpmiddleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/apperror"
	"rollcall/internal/response"
)

// Recovery turns a panic into a 500 envelope without exposing the panic value.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("http")
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", GetRequestID(c)),
		)
		response.Abort(c, http.StatusInternalServerError, apperror.CodeInternal, "an unexpected error occurred")
	})
}
