package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medvault-api/internal/model"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	base    BaseRepository
	doctor  *model.User
	patient *model.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	base := freshDB(t)
	users := NewUserRepository(base)
	ctx := context.Background()

	doctor := &model.User{Email: "d@x.com", Name: "Dr. House", Role: model.RoleDoctor, Enabled: true}
	require.NoError(t, users.Create(ctx, doctor))
	patient := &model.User{Email: "p@x.com", Name: "Pat", Role: model.RolePatient, Enabled: true}
	require.NoError(t, users.Create(ctx, patient))

	return &fixture{base: base, doctor: doctor, patient: patient}
}

func (f *fixture) appointment(slot string, status model.AppointmentStatus) *model.Appointment {
	return &model.Appointment{
		DoctorID:  f.doctor.ID,
		PatientID: f.patient.ID,
		Date:      day,
		Time:      slot,
		Reason:    "checkup",
		Status:    status,
	}
}

func (f *fixture) countAppointments(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.base.GetDB().Get(&n, `SELECT COUNT(*) FROM appointments`))
	return n
}

func TestAppointmentRepository_CreateJoinsNames(t *testing.T) {
	f := setup(t)
	repo := NewAppointmentRepository(f.base)

	apt := f.appointment("09:00", model.AppointmentStatusPending)
	require.NoError(t, repo.Create(context.Background(), apt))

	assert.NotZero(t, apt.ID)
	assert.Equal(t, "Dr. House", apt.DoctorName)
	assert.Equal(t, "p@x.com", apt.PatientEmail)
	assert.True(t, day.Equal(apt.Date.UTC()), apt.Date.String())
	assert.Equal(t, "09:00", apt.Time)
}

func TestAppointmentRepository_ConcurrentBookingKeepsOneRow(t *testing.T) {
	f := setup(t)
	repo := NewAppointmentRepository(f.base)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(context.Background(), f.appointment("12:00", model.AppointmentStatusPending))
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict), err.Error())
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.countAppointments(t))
}

func TestAppointmentRepository_RescheduleOntoOwnSlot(t *testing.T) {
	f := setup(t)
	repo := NewAppointmentRepository(f.base)
	ctx := context.Background()

	apt := f.appointment("10:30", model.AppointmentStatusPending)
	require.NoError(t, repo.Create(ctx, apt))

	taken, err := repo.ExistsForSlot(ctx, f.doctor.ID, day, "10:30", nil)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.ExistsForSlot(ctx, f.doctor.ID, day, "10:30", &apt.ID)
	require.NoError(t, err)
	assert.False(t, taken)

	apt.Status = model.AppointmentStatusApproved
	apt.Reason = "follow-up"
	require.NoError(t, repo.Update(ctx, apt))

	stored, err := repo.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusApproved, stored.Status)
	assert.Equal(t, "follow-up", stored.Reason)
}

func TestAppointmentRepository_UpdateOntoTakenSlot(t *testing.T) {
	f := setup(t)
	repo := NewAppointmentRepository(f.base)
	ctx := context.Background()

	first := f.appointment("09:00", model.AppointmentStatusApproved)
	require.NoError(t, repo.Create(ctx, first))
	second := f.appointment("15:00", model.AppointmentStatusPending)
	require.NoError(t, repo.Create(ctx, second))

	second.Time = "09:00"
	err := repo.Update(ctx, second)
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict))
}

func TestAppointmentRepository_CancelledRowFreesSlot(t *testing.T) {
	f := setup(t)
	repo := NewAppointmentRepository(f.base)
	ctx := context.Background()

	first := f.appointment("15:00", model.AppointmentStatusPending)
	require.NoError(t, repo.Create(ctx, first))

	first.Status = model.AppointmentStatusCancelled
	require.NoError(t, repo.Update(ctx, first))

	taken, err := repo.ExistsForSlot(ctx, f.doctor.ID, day, "15:00", nil)
	require.NoError(t, err)
	assert.False(t, taken)

	second := f.appointment("15:00", model.AppointmentStatusPending)
	require.NoError(t, repo.Create(ctx, second))

	// reviving the cancelled row would double-book the slot
	first.Status = model.AppointmentStatusPending
	err = repo.Update(ctx, first)
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict))

	rows, err := repo.ListByDoctorAndDate(ctx, f.doctor.ID, day)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAppointmentRepository_GetMissing(t *testing.T) {
	f := setup(t)
	repo := NewAppointmentRepository(f.base)

	_, err := repo.Get(context.Background(), 999)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	err = repo.Update(context.Background(), &model.Appointment{ID: 999, Date: day, Time: "09:00", Status: model.AppointmentStatusPending})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestFeedbackRepository_DuplicateInsert(t *testing.T) {
	f := setup(t)
	apts := NewAppointmentRepository(f.base)
	repo := NewFeedbackRepository(f.base)
	ctx := context.Background()

	apt := f.appointment("09:00", model.AppointmentStatusCompleted)
	require.NoError(t, apts.Create(ctx, apt))

	fb := &model.Feedback{AppointmentID: apt.ID, DoctorID: f.doctor.ID, PatientID: f.patient.ID, Rating: 5, Comment: "great"}
	require.NoError(t, repo.Create(ctx, fb))
	assert.NotZero(t, fb.ID)

	again := &model.Feedback{AppointmentID: apt.ID, DoctorID: f.doctor.ID, PatientID: f.patient.ID, Rating: 1}
	err := repo.Create(ctx, again)
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateFeedback), err.Error())

	exists, err := repo.ExistsForAppointment(ctx, apt.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	items, err := repo.ListByDoctor(ctx, f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Pat", items[0].PatientName)
	assert.Equal(t, 5, items[0].Rating)
}

func TestTransactor_OutboxRowSharesTheWrite(t *testing.T) {
	f := setup(t)
	tx := NewTransactor(f.base)
	apts := NewAppointmentRepository(f.base)
	outbox := NewOutboxRepository(f.base)
	ctx := context.Background()

	book := func(slot string, fail error) error {
		return tx.WithinTx(ctx, func(ctx context.Context) error {
			apt := f.appointment(slot, model.AppointmentStatusPending)
			if err := apts.Create(ctx, apt); err != nil {
				return err
			}
			payload, err := json.Marshal(model.NewAppointmentEvent(apt, ""))
			if err != nil {
				return err
			}
			if err := outbox.Create(ctx, &model.OutboxEvent{EventType: model.EventAppointmentBooked, Payload: payload}); err != nil {
				return err
			}
			return fail
		})
	}

	boom := errors.New("boom")
	assert.ErrorIs(t, book("09:00", boom), boom)
	assert.Equal(t, 0, f.countAppointments(t))
	pending, err := outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, book("09:00", nil))
	assert.Equal(t, 1, f.countAppointments(t))
	pending, err = outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.EventAppointmentBooked, pending[0].EventType)

	// a slot conflict inside the transaction discards the event too
	err = book("09:00", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict))
	pending, err = outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOutboxRepository_RetryAndCleanup(t *testing.T) {
	f := setup(t)
	repo := NewOutboxRepository(f.base)
	ctx := context.Background()

	evt := &model.OutboxEvent{EventType: model.EventFeedbackSubmitted, Payload: json.RawMessage(`{"rating":5}`)}
	require.NoError(t, repo.Create(ctx, evt))

	later := time.Now().Add(time.Hour)
	require.NoError(t, repo.MarkFailed(ctx, evt.ID, "redis down", &later))
	pending, err := repo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, repo.MarkFailed(ctx, evt.ID, "redis down", &past))
	pending, err = repo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	require.NotNil(t, pending[0].ErrorMessage)
	assert.Equal(t, "redis down", *pending[0].ErrorMessage)

	require.NoError(t, repo.MarkProcessed(ctx, evt.ID))
	deleted, err := repo.DeleteProcessedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
