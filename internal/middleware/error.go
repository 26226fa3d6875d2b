package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medvault-api/internal/handler"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// AppErrors anywhere in the chain choose the status, a passed deadline is a
// 504 and anything else is a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !apperrors.As(apperrors.Classify(lastErr), &appErr) {
			appErr = apperrors.Internal(lastErr)
		}

		status := appErr.StatusCode()
		resp := handler.NewAppErrorResponse(appErr)
		if fields := ValidationErrors(lastErr); len(fields) > 0 {
			resp.Errors = fields
		}

		c.JSON(status, resp)
	}
}
