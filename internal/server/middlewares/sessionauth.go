package middlewares

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"

	"github.com/openmined/drivegate/internal/server/handlers/api"
	"github.com/openmined/drivegate/internal/server/session"
)

// SessionAuth rejects requests without a live session cookie. It answers 401
// and never redirects, so API callers can tell an expired login apart.
func SessionAuth(sessions *session.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		sess, err := sessions.FromRequest(ctx)
		if err != nil {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidSession, err)
			return
		}

		session.SetContext(ctx, sess)
		slogGin.AddCustomAttributes(ctx, slog.String("subject", sess.Subject))
		ctx.Next()
	}
}
