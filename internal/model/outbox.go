package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Event types written to the outbox.
const (
	EventAppointmentBooked        = "appointment.booked"
	EventAppointmentStatusChanged = "appointment.status_changed"
	EventAppointmentRescheduled   = "appointment.rescheduled"
	EventFeedbackSubmitted        = "feedback.submitted"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// AppointmentEvent is the payload of every appointment.* event.
type AppointmentEvent struct {
	AppointmentID   int64             `json:"appointment_id"`
	DoctorID        int64             `json:"doctor_id"`
	DoctorName      string            `json:"doctor_name"`
	PatientID       int64             `json:"patient_id"`
	PatientName     string            `json:"patient_name"`
	PatientEmail    string            `json:"patient_email"`
	AppointmentDate string            `json:"appointment_date"`
	AppointmentTime string            `json:"appointment_time"`
	Reason          string            `json:"reason,omitempty"`
	PreviousStatus  AppointmentStatus `json:"previous_status,omitempty"`
	Status          AppointmentStatus `json:"status"`
}

func NewAppointmentEvent(a *Appointment, previous AppointmentStatus) AppointmentEvent {
	return AppointmentEvent{
		AppointmentID:   a.ID,
		DoctorID:        a.DoctorID,
		DoctorName:      a.DoctorName,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		PatientEmail:    a.PatientEmail,
		AppointmentDate: a.Date.Format(DateLayout),
		AppointmentTime: a.Time,
		Reason:          a.Reason,
		PreviousStatus:  previous,
		Status:          a.Status,
	}
}

// FeedbackEvent is the payload of feedback.submitted.
type FeedbackEvent struct {
	FeedbackID    int64 `json:"feedback_id"`
	AppointmentID int64 `json:"appointment_id"`
	DoctorID      int64 `json:"doctor_id"`
	PatientID     int64 `json:"patient_id"`
	Rating        int   `json:"rating"`
}
