package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/medvault-api/internal/model"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

const activeSlotIndex = "appointments_active_slot_key"

const appointmentSelect = `
	SELECT a.id, a.doctor_id, a.patient_id, a.appointment_date, a.appointment_time,
	       a.reason, a.status, a.created_at, a.updated_at,
	       d.name AS doctor_name, d.email AS doctor_email,
	       p.name AS patient_name, p.email AS patient_email
	FROM appointments a
	JOIN users d ON d.id = a.doctor_id
	JOIN users p ON p.id = a.patient_id
`

const appointmentOrder = ` ORDER BY a.appointment_date, a.appointment_time, a.id`

func dateParam(t time.Time) string {
	return t.Format(model.DateLayout)
}

func slotTaken(err error) error {
	return apperrors.SlotConflict("the requested slot is already booked", err)
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			doctor_id, patient_id, appointment_date, appointment_time,
			reason, status, created_at, updated_at
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		RETURNING id
	`
	now := time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		err := tx.QueryRowxContext(ctx, query,
			appointment.DoctorID,
			appointment.PatientID,
			dateParam(appointment.Date),
			appointment.Time,
			appointment.Reason,
			appointment.Status,
			now,
			now,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err, activeSlotIndex) {
				return slotTaken(err)
			}
			return fmt.Errorf("failed to create appointment: %w", err)
		}

		stored, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		*appointment = *stored
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	return r.get(ctx, r.conn(ctx), id)
}

func (r *appointmentRepository) get(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.Appointment, error) {
	var appointment model.Appointment
	if err := sqlx.GetContext(ctx, q, &appointment, appointmentSelect+` WHERE a.id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET appointment_date = $1::date, appointment_time = $2, reason = $3, status = $4, updated_at = $5
		WHERE id = $6
	`
	appointment.UpdatedAt = time.Now().UTC()

	result, err := r.conn(ctx).ExecContext(ctx, query,
		dateParam(appointment.Date),
		appointment.Time,
		appointment.Reason,
		appointment.Status,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		if isUniqueViolation(err, activeSlotIndex) {
			return slotTaken(err)
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("appointment", nil)
	}
	return nil
}

func (r *appointmentRepository) list(ctx context.Context, where string, args ...interface{}) ([]*model.Appointment, error) {
	appointments := []*model.Appointment{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &appointments, appointmentSelect+where+appointmentOrder, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error) {
	return r.list(ctx, ` WHERE a.doctor_id = $1`, doctorID)
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error) {
	return r.list(ctx, ` WHERE a.patient_id = $1`, patientID)
}

func (r *appointmentRepository) ListByDoctorAndDate(ctx context.Context, doctorID int64, date time.Time) ([]*model.Appointment, error) {
	return r.list(ctx, ` WHERE a.doctor_id = $1 AND a.appointment_date = $2::date`, doctorID, dateParam(date))
}

func (r *appointmentRepository) ListByDoctorDateAndStatus(ctx context.Context, doctorID int64, date time.Time, status model.AppointmentStatus) ([]*model.Appointment, error) {
	return r.list(ctx,
		` WHERE a.doctor_id = $1 AND a.appointment_date = $2::date AND a.status = $3`,
		doctorID, dateParam(date), status)
}

func (r *appointmentRepository) ListByPatientAndStatus(ctx context.Context, patientID int64, status model.AppointmentStatus) ([]*model.Appointment, error) {
	return r.list(ctx, ` WHERE a.patient_id = $1 AND a.status = $2`, patientID, status)
}

func (r *appointmentRepository) ExistsForSlot(ctx context.Context, doctorID int64, date time.Time, slot string, excludeID *int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND appointment_date = $2::date
			  AND appointment_time = $3
			  AND status <> $4
			  AND ($5::bigint IS NULL OR id <> $5)
		)
	`
	var exists bool
	err := sqlx.GetContext(ctx, r.conn(ctx), &exists, query,
		doctorID, dateParam(date), slot, model.AppointmentStatusCancelled, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return exists, nil
}
