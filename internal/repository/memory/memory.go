// Package memory holds in-process implementations of the repository
// interfaces. They enforce the same uniqueness rules as the Postgres schema
// and back the service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/repository"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

// Store shares one lock and one user table across the repositories so
// appointment reads can join names the way the SQL store does.
type Store struct {
	mu           sync.Mutex
	txMu         sync.Mutex
	users        map[int64]*model.User
	profiles     map[int64]*model.DoctorProfile
	facilities   map[int64]*model.Facility
	appointments map[int64]*model.Appointment
	feedbacks    map[int64]*model.Feedback
	outbox       map[uuid.UUID]*model.OutboxEvent
	nextID       int64
}

func NewStore() *Store {
	return &Store{
		users:        map[int64]*model.User{},
		profiles:     map[int64]*model.DoctorProfile{},
		facilities:   map[int64]*model.Facility{},
		appointments: map[int64]*model.Appointment{},
		feedbacks:    map[int64]*model.Feedback{},
		outbox:       map[uuid.UUID]*model.OutboxEvent{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Users() repository.UserRepository { return &users{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return &appointments{s} }
func (s *Store) Feedbacks() repository.FeedbackRepository { return &feedbacks{s} }
func (s *Store) Outbox() repository.OutboxRepository { return &outbox{s} }
func (s *Store) Transactor() repository.Transactor { return &transactor{s} }

// AddUser inserts u with the given id (0 assigns one) and returns the stored copy.
func (s *Store) AddUser(u model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	u.Email = strings.ToLower(u.Email)
	s.users[u.ID] = &u
	out := u
	return &out
}

// AddDoctorProfile attaches a profile and, when facility is non-empty, a facility.
func (s *Store) AddDoctorProfile(userID int64, specialization, facility string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &model.DoctorProfile{UserID: userID, Specialization: specialization}
	if facility != "" {
		f := &model.Facility{ID: s.id(), Name: facility}
		s.facilities[f.ID] = f
		p.FacilityID = &f.ID
	}
	s.profiles[userID] = p
}

type txKey struct{}

type snapshot struct {
	users        map[int64]model.User
	appointments map[int64]model.Appointment
	feedbacks    map[int64]model.Feedback
	outbox       map[uuid.UUID]model.OutboxEvent
	nextID       int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		users:        make(map[int64]model.User, len(s.users)),
		appointments: make(map[int64]model.Appointment, len(s.appointments)),
		feedbacks:    make(map[int64]model.Feedback, len(s.feedbacks)),
		outbox:       make(map[uuid.UUID]model.OutboxEvent, len(s.outbox)),
		nextID:       s.nextID,
	}
	for id, u := range s.users {
		snap.users[id] = *u
	}
	for id, a := range s.appointments {
		snap.appointments[id] = *a
	}
	for id, f := range s.feedbacks {
		snap.feedbacks[id] = *f
	}
	for id, e := range s.outbox {
		snap.outbox[id] = *e
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[int64]*model.User, len(snap.users))
	for id, u := range snap.users {
		u := u
		s.users[id] = &u
	}
	s.appointments = make(map[int64]*model.Appointment, len(snap.appointments))
	for id, a := range snap.appointments {
		a := a
		s.appointments[id] = &a
	}
	s.feedbacks = make(map[int64]*model.Feedback, len(snap.feedbacks))
	for id, f := range snap.feedbacks {
		f := f
		s.feedbacks[id] = &f
	}
	s.outbox = make(map[uuid.UUID]*model.OutboxEvent, len(snap.outbox))
	for id, e := range snap.outbox {
		e := e
		s.outbox[id] = &e
	}
	s.nextID = snap.nextID
}

// transactor serializes transactions and restores the store when fn fails.
// Writes made outside a transaction while one is open are not isolated.
type transactor struct{ s *Store }

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	snap := t.s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

type users struct{ s *Store }

func (r *users) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return apperrors.NewBadRequest(fmt.Sprintf("user %s already exists", u.Email), nil)
		}
	}
	u.ID = r.s.id()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	r.s.users[u.ID] = &stored
	return nil
}

func (r *users) Get(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	out := *u
	return &out, nil
}

func (r *users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, apperrors.NotFound("user", nil)
}

func (r *users) ListDoctors(_ context.Context) ([]*model.DoctorSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.DoctorSummary{}
	for _, u := range r.s.users {
		if u.Role != model.RoleDoctor || !u.Enabled {
			continue
		}
		d := &model.DoctorSummary{ID: u.ID, Name: u.Name}
		if p, ok := r.s.profiles[u.ID]; ok {
			spec := p.Specialization
			d.Specialization = &spec
			if p.FacilityID != nil {
				name := r.s.facilities[*p.FacilityID].Name
				d.Hospital = &name
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type appointments struct{ s *Store }

// view copies a stored appointment and fills the joined names.
func (r *appointments) view(a *model.Appointment) *model.Appointment {
	out := *a
	if d, ok := r.s.users[a.DoctorID]; ok {
		out.DoctorName, out.DoctorEmail = d.Name, d.Email
	}
	if p, ok := r.s.users[a.PatientID]; ok {
		out.PatientName, out.PatientEmail = p.Name, p.Email
	}
	return &out
}

func (r *appointments) slotTaken(a *model.Appointment) bool {
	for _, other := range r.s.appointments {
		if other.ID != a.ID && other.Status.Active() &&
			other.DoctorID == a.DoctorID && other.Date.Equal(a.Date) && other.Time == a.Time {
			return true
		}
	}
	return false
}

func (r *appointments) Create(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.Date = model.DateOf(a.Date)
	if a.Status.Active() && r.slotTaken(a) {
		return apperrors.SlotConflict("the requested slot is already booked", nil)
	}
	a.ID = r.s.id()
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	stored := *a
	r.s.appointments[a.ID] = &stored
	*a = *r.view(&stored)
	return nil
}

func (r *appointments) Get(_ context.Context, id int64) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, apperrors.NotFound("appointment", nil)
	}
	return r.view(a), nil
}

func (r *appointments) Update(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.appointments[a.ID]
	if !ok {
		return apperrors.NotFound("appointment", nil)
	}
	next := *current
	next.Date = model.DateOf(a.Date)
	next.Time = a.Time
	next.Reason = a.Reason
	next.Status = a.Status
	if next.Status.Active() && r.slotTaken(&next) {
		return apperrors.SlotConflict("the requested slot is already booked", nil)
	}
	next.UpdatedAt = time.Now().UTC()
	a.UpdatedAt = next.UpdatedAt
	r.s.appointments[a.ID] = &next
	return nil
}

func (r *appointments) filter(keep func(*model.Appointment) bool) []*model.Appointment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Appointment{}
	for _, a := range r.s.appointments {
		if keep(a) {
			out = append(out, r.view(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *appointments) ListByDoctor(_ context.Context, doctorID int64) ([]*model.Appointment, error) {
	return r.filter(func(a *model.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (r *appointments) ListByPatient(_ context.Context, patientID int64) ([]*model.Appointment, error) {
	return r.filter(func(a *model.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *appointments) ListByDoctorAndDate(_ context.Context, doctorID int64, date time.Time) ([]*model.Appointment, error) {
	day := model.DateOf(date)
	return r.filter(func(a *model.Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(day)
	}), nil
}

func (r *appointments) ListByDoctorDateAndStatus(_ context.Context, doctorID int64, date time.Time, status model.AppointmentStatus) ([]*model.Appointment, error) {
	day := model.DateOf(date)
	return r.filter(func(a *model.Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(day) && a.Status == status
	}), nil
}

func (r *appointments) ListByPatientAndStatus(_ context.Context, patientID int64, status model.AppointmentStatus) ([]*model.Appointment, error) {
	return r.filter(func(a *model.Appointment) bool {
		return a.PatientID == patientID && a.Status == status
	}), nil
}

func (r *appointments) ExistsForSlot(_ context.Context, doctorID int64, date time.Time, slot string, excludeID *int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	probe := &model.Appointment{DoctorID: doctorID, Date: model.DateOf(date), Time: slot}
	if excludeID != nil {
		probe.ID = *excludeID
	}
	return r.slotTaken(probe), nil
}

type feedbacks struct{ s *Store }

func (r *feedbacks) Create(_ context.Context, f *model.Feedback) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.feedbacks {
		if existing.AppointmentID == f.AppointmentID {
			return apperrors.DuplicateFeedback(nil)
		}
	}
	f.ID = r.s.id()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	stored := *f
	r.s.feedbacks[f.ID] = &stored
	return nil
}

func (r *feedbacks) ExistsForAppointment(_ context.Context, appointmentID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.feedbacks {
		if f.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *feedbacks) ListByDoctor(_ context.Context, doctorID int64) ([]*model.Feedback, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Feedback{}
	for _, f := range r.s.feedbacks {
		if f.DoctorID != doctorID {
			continue
		}
		view := *f
		if p, ok := r.s.users[f.PatientID]; ok {
			view.PatientName = p.Name
		}
		out = append(out, &view)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type outbox struct{ s *Store }

func (r *outbox) Create(_ context.Context, e *model.OutboxEvent) error {
	if e == nil || e.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = uuid.New()
	e.Status = model.OutboxStatusPending
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	stored := *e
	r.s.outbox[e.ID] = &stored
	return nil
}

func (r *outbox) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	out := []*model.OutboxEvent{}
	for _, e := range r.s.outbox {
		due := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusFailed && e.RetryAt != nil && !e.RetryAt.After(now))
		if due {
			view := *e
			out = append(out, &view)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outbox) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return apperrors.NotFound("outbox event", nil)
	}
	now := time.Now().UTC()
	e.Status = model.OutboxStatusProcessed
	e.ErrorMessage, e.RetryAt = nil, nil
	e.ProcessedAt = &now
	e.UpdatedAt = now
	return nil
}

func (r *outbox) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return apperrors.NotFound("outbox event", nil)
	}
	e.Status = model.OutboxStatusFailed
	e.ErrorMessage = &errMsg
	e.RetryAt = retryAt
	e.RetryCount++
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *outbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}

// OutboxEvents returns a snapshot of every outbox row, oldest first.
func (s *Store) OutboxEvents() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		view := *e
		out = append(out, &view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
