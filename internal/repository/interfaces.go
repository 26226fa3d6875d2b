package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medvault-api/internal/model"
)

// All repository interfaces in one file.
// Lookups that find nothing return an *errors.AppError with code ErrNotFound.
type (
	// UserRepository is the user/doctor directory.
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id int64) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		ListDoctors(ctx context.Context) ([]*model.DoctorSummary, error)
	}

	AppointmentRepository interface {
		// Create and Update report a clash with another active appointment in
		// the same slot as ErrSlotConflict.
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id int64) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error)
		ListByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error)
		ListByDoctorAndDate(ctx context.Context, doctorID int64, date time.Time) ([]*model.Appointment, error)
		ListByDoctorDateAndStatus(ctx context.Context, doctorID int64, date time.Time, status model.AppointmentStatus) ([]*model.Appointment, error)
		ListByPatientAndStatus(ctx context.Context, patientID int64, status model.AppointmentStatus) ([]*model.Appointment, error)
		// ExistsForSlot reports whether an active appointment other than excludeID holds the slot.
		ExistsForSlot(ctx context.Context, doctorID int64, date time.Time, slot string, excludeID *int64) (bool, error)
	}

	FeedbackRepository interface {
		// Create reports a second review of the same appointment as ErrDuplicateFeedback.
		Create(ctx context.Context, feedback *model.Feedback) error
		ExistsForAppointment(ctx context.Context, appointmentID int64) (bool, error)
		ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Feedback, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Transactor runs fn in one transaction. Repository calls made with the
	// ctx passed to fn join it; a non-nil error from fn rolls everything back.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)
