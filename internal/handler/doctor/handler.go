package doctor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medvault-api/internal/handler"
	"github.com/jwalitptl/medvault-api/internal/middleware"
	"github.com/jwalitptl/medvault-api/internal/service/directory"
)

type Handler struct {
	directory *directory.Service
	auth      *middleware.AuthMiddleware
}

func NewHandler(dir *directory.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{directory: dir, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/doctors", h.auth.Authenticate(), h.ListDoctors)
}

// ListDoctors returns every enabled doctor with specialization and hospital.
func (h *Handler) ListDoctors(c *gin.Context) {
	doctors, err := h.directory.ListDoctors(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(doctors))
}
