package postgres

import (
	"github.com/jwalitptl/medvault-api/internal/repository"
)

type userRepository struct {
	BaseRepository
}

type appointmentRepository struct {
	BaseRepository
}

type feedbackRepository struct {
	BaseRepository
}

type outboxRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

func NewFeedbackRepository(base BaseRepository) repository.FeedbackRepository {
	return &feedbackRepository{base}
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}
