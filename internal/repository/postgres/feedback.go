package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/medvault-api/internal/model"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

func (r *feedbackRepository) Create(ctx context.Context, feedback *model.Feedback) error {
	query := `
		INSERT INTO feedbacks (appointment_id, doctor_id, patient_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}

	err := r.conn(ctx).QueryRowxContext(ctx, query,
		feedback.AppointmentID,
		feedback.DoctorID,
		feedback.PatientID,
		feedback.Rating,
		feedback.Comment,
		feedback.CreatedAt,
	).Scan(&feedback.ID)
	if err != nil {
		if isUniqueViolation(err, "feedbacks_appointment_id_key") {
			return apperrors.DuplicateFeedback(err)
		}
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

func (r *feedbackRepository) ExistsForAppointment(ctx context.Context, appointmentID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM feedbacks WHERE appointment_id = $1)`
	if err := sqlx.GetContext(ctx, r.conn(ctx), &exists, query, appointmentID); err != nil {
		return false, fmt.Errorf("failed to check feedback: %w", err)
	}
	return exists, nil
}

func (r *feedbackRepository) ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Feedback, error) {
	query := `
		SELECT f.id, f.appointment_id, f.doctor_id, f.patient_id, f.rating, f.comment, f.created_at,
		       p.name AS patient_name
		FROM feedbacks f
		JOIN users p ON p.id = f.patient_id
		WHERE f.doctor_id = $1
		ORDER BY f.created_at DESC, f.id DESC
	`
	feedbacks := []*model.Feedback{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &feedbacks, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return feedbacks, nil
}
