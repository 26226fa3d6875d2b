package model

import "time"

// Rating bounds for feedback.
const (
	MinRating = 1
	MaxRating = 5
)

// Feedback is a patient's review of a completed appointment. Doctor and
// patient are copied from the appointment when the review is written.
type Feedback struct {
	ID            int64     `db:"id" json:"id"`
	AppointmentID int64     `db:"appointment_id" json:"appointment_id"`
	DoctorID      int64     `db:"doctor_id" json:"doctor_id"`
	PatientID     int64     `db:"patient_id" json:"patient_id"`
	Rating        int       `db:"rating" json:"rating"`
	Comment       string    `db:"comment" json:"comment"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	PatientName string `db:"patient_name" json:"patient_name"`
}

type FeedbackRequest struct {
	AppointmentID int64  `json:"appointment_id" binding:"required,gt=0"`
	Rating        int    `json:"rating" binding:"required,min=1,max=5"`
	Comment       string `json:"comment" binding:"max=2000"`
}

type FeedbackResponse struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointment_id"`
	PatientName   string    `json:"patient_name"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewFeedbackResponses(items []*Feedback) []FeedbackResponse {
	out := make([]FeedbackResponse, 0, len(items))
	for _, f := range items {
		out = append(out, FeedbackResponse{
			ID:            f.ID,
			AppointmentID: f.AppointmentID,
			PatientName:   f.PatientName,
			Rating:        f.Rating,
			Comment:       f.Comment,
			CreatedAt:     f.CreatedAt,
		})
	}
	return out
}
