package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/drivegate/internal/server/auth"
	"github.com/openmined/drivegate/internal/server/handlers/api"
	"github.com/openmined/drivegate/internal/server/session"
)

type AuthHandler struct {
	auth *auth.AuthService
}

func New(auth *auth.AuthService) *AuthHandler {
	return &AuthHandler{
		auth: auth,
	}
}

// Auth starts a Google login, or goes straight to the post-login page when
// the caller already holds a session with every required scope.
func (h *AuthHandler) Auth(ctx *gin.Context) {
	var req LoginRequest
	_ = ctx.ShouldBindQuery(&req)

	if sess, err := h.auth.Sessions().FromRequest(ctx); err == nil && h.auth.HasRequiredScopes(sess) {
		ctx.Redirect(http.StatusFound, h.auth.PostLoginPath())
		return
	}

	authURL, err := h.auth.BeginLogin(req.ReturnURL)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	ctx.Redirect(http.StatusFound, authURL)
}

// Callback completes the login at the OAuth redirect URL.
func (h *AuthHandler) Callback(ctx *gin.Context) {
	var req CallbackRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind query: %w", err))
		return
	}

	res, err := h.auth.CompleteLogin(ctx.Request.Context(), &auth.CallbackRequest{
		State: req.State,
		Code:  req.Code,
		Error: req.Error,
	})
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeAuthInvalidState, err)
		return
	case errors.Is(err, auth.ErrAuthDenied), errors.Is(err, auth.ErrMissingCode), errors.Is(err, auth.ErrExchange):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeAuthLoginFailed, err)
		return
	case err != nil:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeAuthLoginFailed, err)
		return
	}

	h.auth.Sessions().SetCookie(ctx, res.Cookie)
	ctx.Redirect(http.StatusFound, res.ReturnTo)
}

// IsAuthorized answers true or false and never challenges.
//
//	@Summary	Check session
//	@Tags		auth
//	@Produce	json
//	@Success	200	{boolean}	bool
//	@Router		/api/Drive/User/IsAuthorized [get]
func (h *AuthHandler) IsAuthorized(ctx *gin.Context) {
	_, err := h.auth.Sessions().FromRequest(ctx)
	ctx.JSON(http.StatusOK, err == nil)
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	if sess, err := h.auth.Sessions().FromRequest(ctx); err == nil {
		h.auth.Sessions().Delete(sess.ID)
		slog.Info("logout", "subject", sess.Subject, "session", sess.ID)
	}
	h.auth.Sessions().ClearCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// UserInfo serves the Google profile of the signed-in user.
//
//	@Summary	Get user profile
//	@Tags		auth
//	@Produce	json
//	@Success	200	{object}	auth.UserInfo
//	@Failure	401	{object}	api.APIError
//	@Failure	500	{object}	api.APIError
//	@Router		/api/Drive/User/UserInfo [get]
func (h *AuthHandler) UserInfo(ctx *gin.Context) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidSession, session.ErrInvalidSession)
		return
	}

	info, err := h.auth.UserInfo(ctx.Request.Context(), sess)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeDriveUserInfo, err)
		return
	}

	ctx.JSON(http.StatusOK, info)
}
