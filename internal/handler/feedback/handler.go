package feedback

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medvault-api/internal/handler"
	"github.com/jwalitptl/medvault-api/internal/middleware"
	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/service/feedback"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

type Handler struct {
	service *feedback.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *feedback.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	fb := r.Group("/feedback", h.auth.Authenticate())
	{
		fb.POST("", h.auth.RequireRole(model.RolePatient), h.SubmitFeedback)
		fb.GET("/doctor", h.auth.RequireRole(model.RoleDoctor), h.GetDoctorFeedbacks)
	}
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	fb, err := h.service.SubmitFeedback(c.Request.Context(), req.AppointmentID, req.Rating, req.Comment, middleware.CurrentEmail(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(model.NewFeedbackResponses([]*model.Feedback{fb})[0]))
}

func (h *Handler) GetDoctorFeedbacks(c *gin.Context) {
	items, err := h.service.GetDoctorFeedbacks(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.NewFeedbackResponses(items)))
}
