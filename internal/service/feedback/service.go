package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/repository"
	"github.com/jwalitptl/medvault-api/internal/service/directory"
	"github.com/jwalitptl/medvault-api/internal/service/event"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
	"github.com/jwalitptl/medvault-api/pkg/logger"
	"github.com/jwalitptl/medvault-api/pkg/metrics"
)

type Service struct {
	repo         repository.FeedbackRepository
	tx           repository.Transactor
	appointments repository.AppointmentRepository
	directory    directory.Directory
	events       event.Emitter
	metrics      *metrics.Metrics
	logger       *logger.Logger
	now          func() time.Time
}

func NewService(
	repo repository.FeedbackRepository,
	tx repository.Transactor,
	appointments repository.AppointmentRepository,
	dir directory.Directory,
	events event.Emitter,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:         repo,
		tx:           tx,
		appointments: appointments,
		directory:    dir,
		events:       events,
		metrics:      m,
		logger:       log,
		now:          time.Now,
	}
}

// SubmitFeedback records the calling patient's review of one of their own
// completed appointments. Each appointment takes at most one review.
func (s *Service) SubmitFeedback(ctx context.Context, appointmentID int64, rating int, comment, patientEmail string) (*model.Feedback, error) {
	if rating < model.MinRating || rating > model.MaxRating {
		return nil, apperrors.BadRequest(fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating), nil)
	}

	patient, err := s.directory.FindByIdentity(ctx, patientEmail)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Classify(err)
	}

	apt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if apt.PatientID != patient.ID {
		return nil, apperrors.Unauthorized("appointment belongs to another patient")
	}
	if apt.Status != model.AppointmentStatusCompleted {
		return nil, apperrors.InvalidState(fmt.Sprintf("feedback requires a completed appointment, status is %s", apt.Status))
	}

	exists, err := s.repo.ExistsForAppointment(ctx, apt.ID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if exists {
		return nil, apperrors.DuplicateFeedback(nil)
	}

	fb := &model.Feedback{
		AppointmentID: apt.ID,
		DoctorID:      apt.DoctorID,
		PatientID:     apt.PatientID,
		Rating:        rating,
		Comment:       strings.TrimSpace(comment),
		CreatedAt:     s.now().UTC(),
		PatientName:   apt.PatientName,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, fb); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventFeedbackSubmitted, model.FeedbackEvent{
			FeedbackID:    fb.ID,
			AppointmentID: fb.AppointmentID,
			DoctorID:      fb.DoctorID,
			PatientID:     fb.PatientID,
			Rating:        fb.Rating,
		})
	})
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrDuplicateFeedback) {
			s.logger.Error(err, "feedback write rolled back", "appointment_id", apt.ID)
		}
		return nil, apperrors.Classify(err)
	}

	s.metrics.FeedbackSubmitted.Inc()

	return fb, nil
}

// GetDoctorFeedbacks lists reviews of the doctor, newest first.
func (s *Service) GetDoctorFeedbacks(ctx context.Context, doctorEmail string) ([]*model.Feedback, error) {
	doctor, err := s.directory.FindByIdentity(ctx, doctorEmail)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, apperrors.Classify(err)
	}

	items, err := s.repo.ListByDoctor(ctx, doctor.ID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return items, nil
}
