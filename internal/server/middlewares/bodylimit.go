package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/drivegate/internal/server/handlers/api"
)

const msgRequestTooLarge = "Request body too large"

// MaxBodySize caps the request body at limit bytes. A declared length over the
// limit is refused up front; undeclared bodies fail once they cross it.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if limit <= 0 {
			ctx.Next()
			return
		}

		if ctx.Request.ContentLength > limit {
			api.AbortWithMessage(ctx, http.StatusRequestEntityTooLarge, msgRequestTooLarge, nil)
			return
		}

		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
		ctx.Next()
	}
}
