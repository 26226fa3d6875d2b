package model

import (
	"fmt"
	"strings"
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusApproved  AppointmentStatus = "APPROVED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// ParseAppointmentStatus accepts the four status labels, case-insensitively.
func ParseAppointmentStatus(label string) (AppointmentStatus, bool) {
	status := AppointmentStatus(strings.ToUpper(strings.TrimSpace(label)))
	switch status {
	case AppointmentStatusPending, AppointmentStatusApproved,
		AppointmentStatusCompleted, AppointmentStatusCancelled:
		return status, true
	}
	return "", false
}

// Active reports whether the appointment still occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s != AppointmentStatusCancelled
}

// Wire layouts for dates and slot labels.
const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

// ParseDate parses a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DateOf truncates t to its calendar date in UTC, the form dates are stored and compared in.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseSlot validates a time-of-day label and returns it in canonical HH:MM form.
func ParseSlot(s string) (string, error) {
	t, err := time.Parse(SlotLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return t.Format(SlotLayout), nil
}

// Appointment is a booked (doctor, date, time) slot. Names and emails of both
// parties are filled in by the store for presentation and ownership checks.
type Appointment struct {
	ID        int64             `db:"id" json:"id"`
	DoctorID  int64             `db:"doctor_id" json:"doctor_id"`
	PatientID int64             `db:"patient_id" json:"patient_id"`
	Date      time.Time         `db:"appointment_date" json:"appointment_date"`
	Time      string            `db:"appointment_time" json:"appointment_time"`
	Reason    string            `db:"reason" json:"reason"`
	Status    AppointmentStatus `db:"status" json:"status"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`

	DoctorName   string `db:"doctor_name" json:"doctor_name"`
	DoctorEmail  string `db:"doctor_email" json:"-"`
	PatientName  string `db:"patient_name" json:"patient_name"`
	PatientEmail string `db:"patient_email" json:"-"`
}

type BookAppointmentRequest struct {
	DoctorID int64  `json:"doctor_id" binding:"required,gt=0"`
	Date     string `json:"date" binding:"required,isodate"`
	Time     string `json:"time" binding:"required,slotlabel"`
	Reason   string `json:"reason" binding:"max=1000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type RescheduleRequest struct {
	AppointmentID int64  `json:"appointment_id" binding:"required,gt=0"`
	Date          string `json:"date" binding:"required,isodate"`
	Time          string `json:"time" binding:"required,slotlabel"`
	Note          string `json:"note" binding:"max=1000"`
}

type AppointmentResponse struct {
	ID              int64             `json:"id"`
	DoctorID        int64             `json:"doctor_id"`
	DoctorName      string            `json:"doctor_name"`
	PatientID       int64             `json:"patient_id"`
	PatientName     string            `json:"patient_name"`
	AppointmentDate string            `json:"appointment_date"`
	AppointmentTime string            `json:"appointment_time"`
	Reason          string            `json:"reason,omitempty"`
	Status          AppointmentStatus `json:"status"`
}

func NewAppointmentResponse(a *Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		DoctorName:      a.DoctorName,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		AppointmentDate: a.Date.Format(DateLayout),
		AppointmentTime: a.Time,
		Reason:          a.Reason,
		Status:          a.Status,
	}
}

func NewAppointmentResponses(apts []*Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(apts))
	for _, a := range apts {
		out = append(out, NewAppointmentResponse(a))
	}
	return out
}
