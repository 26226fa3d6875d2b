package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medvault-api/internal/handler"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

// Timeout bounds the request context. A handler that returns after the
// deadline without writing or attaching an error still gets a 504; errors it
// does attach are rendered by ErrorHandler, which maps the deadline to 504 too.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			err := apperrors.Timeout(ctx.Err())
			c.AbortWithStatusJSON(err.StatusCode(), handler.NewAppErrorResponse(err))
		}
	}
}
