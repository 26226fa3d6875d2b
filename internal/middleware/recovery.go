package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medvault-api/internal/handler"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

// Recovery turns a handler panic into a 500 INTERNAL envelope. The stack is
// logged with the route and, behind Authenticate, the caller.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}

			log.Error().
				Err(err).
				Bytes("stack", debug.Stack()).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("route", c.FullPath()).
				Str("user", CurrentEmail(c)).
				Str("role", string(CurrentRole(c))).
				Msg("handler panicked")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			appErr := apperrors.Internal(err)
			c.AbortWithStatusJSON(appErr.StatusCode(), handler.NewAppErrorResponse(appErr))
		}()
		c.Next()
	}
}
