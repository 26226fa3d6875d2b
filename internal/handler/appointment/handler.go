package appointment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medvault-api/internal/handler"
	"github.com/jwalitptl/medvault-api/internal/middleware"
	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/service/appointment"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

type Handler struct {
	service *appointment.Service
	auth    *middleware.AuthMiddleware
	now     func() time.Time
}

// NewHandler builds the appointment routes. "Today" is the current date in loc.
func NewHandler(service *appointment.Service, auth *middleware.AuthMiddleware, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		service: service,
		auth:    auth,
		now:     func() time.Time { return time.Now().In(loc) },
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	common := r.Group("/appointments", h.auth.Authenticate())
	{
		common.GET("/available", h.GetAvailableSlots)
		common.GET("/completed", h.auth.RequireRole(model.RolePatient), h.GetCompletedAppointments)
	}

	patient := r.Group("/patient/appointments", h.auth.Authenticate(), h.auth.RequireRole(model.RolePatient))
	{
		patient.POST("/book", h.BookAppointment)
		patient.GET("", h.GetPatientAppointments)
	}

	doctor := r.Group("/doctor/appointments", h.auth.Authenticate(), h.auth.RequireRole(model.RoleDoctor))
	{
		doctor.GET("", h.GetDoctorAppointments)
		doctor.GET("/today", h.GetTodayAppointments)
		doctor.PUT("/:id/status", h.UpdateStatus)
		doctor.POST("/reschedule", h.Reschedule)
	}
}

func (h *Handler) GetAvailableSlots(c *gin.Context) {
	raw := c.Query("doctor_id")
	if raw == "" {
		raw = c.Query("doctorId")
	}
	doctorID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || doctorID <= 0 {
		_ = c.Error(apperrors.BadRequest("invalid doctor ID", err))
		return
	}

	date, err := model.ParseDate(c.Query("date"))
	if err != nil {
		_ = c.Error(apperrors.BadRequest(err.Error(), err))
		return
	}

	slots, err := h.service.GetAvailableSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

func (h *Handler) GetCompletedAppointments(c *gin.Context) {
	apts, err := h.service.GetCompletedAppointments(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.NewAppointmentResponses(apts)))
}

func (h *Handler) BookAppointment(c *gin.Context) {
	var req model.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	date, err := model.ParseDate(req.Date)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(err.Error(), err))
		return
	}

	apt, err := h.service.BookAppointment(c.Request.Context(), req.DoctorID, middleware.CurrentEmail(c), date, req.Time, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(model.NewAppointmentResponse(apt)))
}

func (h *Handler) GetPatientAppointments(c *gin.Context) {
	apts, err := h.service.GetPatientAppointments(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.NewAppointmentResponses(apts)))
}

func (h *Handler) GetDoctorAppointments(c *gin.Context) {
	apts, err := h.service.GetDoctorAppointments(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.NewAppointmentResponses(apts)))
}

func (h *Handler) GetTodayAppointments(c *gin.Context) {
	apts, err := h.service.GetTodayAppointmentsForDoctor(c.Request.Context(), middleware.CurrentEmail(c), h.now())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.NewAppointmentResponses(apts)))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	apt, err := h.service.UpdateAppointmentStatus(c.Request.Context(), id, req.Status, middleware.CurrentEmail(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.NewAppointmentResponse(apt)))
}

func (h *Handler) Reschedule(c *gin.Context) {
	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	date, err := model.ParseDate(req.Date)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(err.Error(), err))
		return
	}

	apt, err := h.service.RescheduleAppointment(c.Request.Context(), req.AppointmentID, date, req.Time, req.Note, middleware.CurrentEmail(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.NewAppointmentResponse(apt)))
}
