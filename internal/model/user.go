package model

import (
	"time"
)

// Role is the capability tag carried by every user.
type Role string

// User roles
const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// User represents a system user. Role is fixed at creation.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (u *User) HasRole(role Role) bool {
	return u != nil && u.Role == role
}

// Facility is the hospital or clinic a doctor is affiliated with.
type Facility struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// DoctorProfile is one-to-one with a DOCTOR user.
type DoctorProfile struct {
	UserID         int64  `json:"user_id" db:"user_id"`
	Specialization string `json:"specialization" db:"specialization"`
	FacilityID     *int64 `json:"facility_id,omitempty" db:"facility_id"`
}

// DoctorSummary is the public directory entry for a doctor.
type DoctorSummary struct {
	ID             int64   `json:"id" db:"id"`
	Name           string  `json:"name" db:"name"`
	Specialization *string `json:"specialization,omitempty" db:"specialization"`
	Hospital       *string `json:"hospital,omitempty" db:"facility_name"`
}
