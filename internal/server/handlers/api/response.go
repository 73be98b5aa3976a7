package api

import "github.com/gin-gonic/gin"

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortWithMessage ends the request with a plain-text body, logging err when set.
func AbortWithMessage(ctx *gin.Context, status int, message string, err error) {
	ctx.Abort()
	if err != nil {
		ctx.Error(err)
	}
	ctx.String(status, message)
}
