package appointment

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

// DefaultSlots is the daily slot catalog used when none is configured.
var DefaultSlots = []string{"09:00", "10:30", "12:00", "15:00", "16:30"}

type Service struct {
	repo      repository.AppointmentRepository
	tx        repository.Transactor
	directory directory.Directory
	events    event.Emitter
	slots     []string
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewService(
	repo repository.AppointmentRepository,
	tx repository.Transactor,
	dir directory.Directory,
	events event.Emitter,
	slots []string,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if len(slots) == 0 {
		slots = DefaultSlots
	}
	catalog := make([]string, len(slots))
	copy(catalog, slots)

	return &Service{
		repo:      repo,
		tx:        tx,
		directory: dir,
		events:    events,
		slots:     catalog,
		metrics:   m,
		logger:    log,
	}
}

// Slots returns a copy of the daily slot catalog in order.
func (s *Service) Slots() []string {
	out := make([]string, len(s.slots))
	copy(out, s.slots)
	return out
}

// BookAppointment reserves (doctor, date, slot) for the calling patient in PENDING.
func (s *Service) BookAppointment(ctx context.Context, doctorID int64, patientEmail string, date time.Time, slot, reason string) (*model.Appointment, error) {
	patient, err := s.directory.FindByIdentity(ctx, patientEmail)
	if err != nil {
		return nil, renameNotFound(err, "patient")
	}
	if !patient.HasRole(model.RolePatient) {
		return nil, apperrors.InvalidRole("only patients can book appointments")
	}

	doctor, err := s.directory.FindByID(ctx, doctorID)
	if err != nil {
		return nil, renameNotFound(err, "doctor")
	}
	if !doctor.HasRole(model.RoleDoctor) {
		return nil, apperrors.InvalidRole("selected user is not a doctor")
	}

	slot, err = s.catalogSlot(slot)
	if err != nil {
		return nil, err
	}
	date = model.DateOf(date)

	apt := &model.Appointment{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		Date:      date,
		Time:      slot,
		Reason:    strings.TrimSpace(reason),
		Status:    model.AppointmentStatusPending,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.repo.ExistsForSlot(ctx, doctor.ID, date, slot, nil)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.SlotConflict("slot already booked", nil)
		}
		if err := s.repo.Create(ctx, apt); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventAppointmentBooked, model.NewAppointmentEvent(apt, ""))
	})
	if err != nil {
		return nil, s.failed("book", err)
	}

	s.metrics.AppointmentsBooked.Inc()
	s.logger.Info("appointment booked",
		"appointment_id", apt.ID, "doctor_id", apt.DoctorID, "patient_id", apt.PatientID,
		"date", apt.Date.Format(model.DateLayout), "time", apt.Time)

	return apt, nil
}

// GetAvailableSlots returns the catalog slots not held by an active appointment,
// in catalog order.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID int64, date time.Time) ([]string, error) {
	doctor, err := s.directory.FindByID(ctx, doctorID)
	if err != nil {
		return nil, renameNotFound(err, "doctor")
	}
	if !doctor.HasRole(model.RoleDoctor) {
		return nil, apperrors.InvalidRole("selected user is not a doctor")
	}

	booked, err := s.repo.ListByDoctorAndDate(ctx, doctor.ID, model.DateOf(date))
	if err != nil {
		return nil, apperrors.Classify(err)
	}

	occupied := make(map[string]bool, len(booked))
	for _, apt := range booked {
		if apt.Status.Active() {
			occupied[apt.Time] = true
		}
	}

	available := make([]string, 0, len(s.slots))
	for _, slot := range s.slots {
		if !occupied[slot] {
			available = append(available, slot)
		}
	}
	return available, nil
}

func (s *Service) GetDoctorAppointments(ctx context.Context, doctorEmail string) ([]*model.Appointment, error) {
	doctor, err := s.resolve(ctx, doctorEmail, model.RoleDoctor)
	if err != nil {
		return nil, err
	}
	apts, err := s.repo.ListByDoctor(ctx, doctor.ID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return apts, nil
}

func (s *Service) GetPatientAppointments(ctx context.Context, patientEmail string) ([]*model.Appointment, error) {
	patient, err := s.resolve(ctx, patientEmail, model.RolePatient)
	if err != nil {
		return nil, err
	}
	apts, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return apts, nil
}

// GetTodayAppointmentsForDoctor lists the doctor's APPROVED appointments on today's date.
func (s *Service) GetTodayAppointmentsForDoctor(ctx context.Context, doctorEmail string, today time.Time) ([]*model.Appointment, error) {
	doctor, err := s.resolve(ctx, doctorEmail, model.RoleDoctor)
	if err != nil {
		return nil, err
	}
	apts, err := s.repo.ListByDoctorDateAndStatus(ctx, doctor.ID, model.DateOf(today), model.AppointmentStatusApproved)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return apts, nil
}

func (s *Service) GetCompletedAppointments(ctx context.Context, patientEmail string) ([]*model.Appointment, error) {
	patient, err := s.resolve(ctx, patientEmail, model.RolePatient)
	if err != nil {
		return nil, err
	}
	apts, err := s.repo.ListByPatientAndStatus(ctx, patient.ID, model.AppointmentStatusCompleted)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return apts, nil
}

// UpdateAppointmentStatus sets any recognized status; there is no transition graph.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id int64, statusLabel, doctorEmail string) (*model.Appointment, error) {
	apt, err := s.ownedAppointment(ctx, id, doctorEmail)
	if err != nil {
		return nil, err
	}

	status, ok := model.ParseAppointmentStatus(statusLabel)
	if !ok {
		return nil, apperrors.InvalidStatus(statusLabel)
	}

	previous := apt.Status
	apt.Status = status
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, apt); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventAppointmentStatusChanged, model.NewAppointmentEvent(apt, previous))
	})
	if err != nil {
		return nil, s.failed("status", err)
	}

	s.metrics.StatusChanges.WithLabelValues(string(status)).Inc()
	s.logger.Info("appointment status updated",
		"appointment_id", apt.ID, "from", string(previous), "to", string(status))

	return apt, nil
}

// RescheduleAppointment moves the appointment to a new slot and approves it.
// A non-blank note replaces the reason.
func (s *Service) RescheduleAppointment(ctx context.Context, id int64, newDate time.Time, newSlot, note, doctorEmail string) (*model.Appointment, error) {
	apt, err := s.ownedAppointment(ctx, id, doctorEmail)
	if err != nil {
		return nil, err
	}
	if apt.Status == model.AppointmentStatusCancelled {
		return nil, apperrors.InvalidState("cancelled appointments cannot be rescheduled")
	}

	newSlot, err = s.catalogSlot(newSlot)
	if err != nil {
		return nil, err
	}
	newDate = model.DateOf(newDate)

	previous := apt.Status
	moved := *apt
	moved.Date = newDate
	moved.Time = newSlot
	if note = strings.TrimSpace(note); note != "" {
		moved.Reason = note
	}
	moved.Status = model.AppointmentStatusApproved

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.repo.ExistsForSlot(ctx, apt.DoctorID, newDate, newSlot, &apt.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.SlotConflict("new slot already booked", nil)
		}
		if err := s.repo.Update(ctx, &moved); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventAppointmentRescheduled, model.NewAppointmentEvent(&moved, previous))
	})
	if err != nil {
		return nil, s.failed("reschedule", err)
	}
	apt = &moved

	s.logger.Info("appointment rescheduled",
		"appointment_id", apt.ID, "date", apt.Date.Format(model.DateLayout), "time", apt.Time)

	return apt, nil
}

// ownedAppointment loads the appointment and checks that doctorEmail is its doctor.
func (s *Service) ownedAppointment(ctx context.Context, id int64, doctorEmail string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if !strings.EqualFold(apt.DoctorEmail, strings.TrimSpace(doctorEmail)) {
		return nil, apperrors.Unauthorized("appointment belongs to another doctor")
	}
	return apt, nil
}

func (s *Service) resolve(ctx context.Context, email string, role model.Role) (*model.User, error) {
	user, err := s.directory.FindByIdentity(ctx, email)
	if err != nil {
		return nil, renameNotFound(err, strings.ToLower(string(role)))
	}
	if !user.HasRole(role) {
		return nil, apperrors.InvalidRole(fmt.Sprintf("caller is not a %s", strings.ToLower(string(role))))
	}
	return user, nil
}

func (s *Service) catalogSlot(label string) (string, error) {
	slot, err := model.ParseSlot(label)
	if err != nil {
		return "", apperrors.BadRequest(err.Error(), err)
	}
	for _, known := range s.slots {
		if known == slot {
			return slot, nil
		}
	}
	return "", apperrors.BadRequest(fmt.Sprintf("%s is not a bookable slot", slot), nil)
}

// failed counts slot conflicts for op and classifies err. The write and its
// outbox event have already been rolled back together.
func (s *Service) failed(op string, err error) error {
	if apperrors.Is(err, apperrors.ErrSlotConflict) {
		s.metrics.SlotConflicts.WithLabelValues(op).Inc()
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		s.logger.Error(err, "appointment write rolled back", "op", op)
	}
	return apperrors.Classify(err)
}

// renameNotFound replaces the generic "user not found" with the role the
// caller was looking for.
func renameNotFound(err error, resource string) error {
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Classify(err)
}
