package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/medvault-api/internal/model"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

const userColumns = `id, email, name, role, password_hash, enabled, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (email, name, role, password_hash, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	err := r.conn(ctx).QueryRowxContext(ctx, query,
		user.Email,
		user.Name,
		user.Role,
		user.PasswordHash,
		user.Enabled,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return apperrors.NewBadRequest(fmt.Sprintf("user %s already exists", user.Email), err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := sqlx.GetContext(ctx, r.conn(ctx), &user, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user model.User
	if err := sqlx.GetContext(ctx, r.conn(ctx), &user, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) ListDoctors(ctx context.Context) ([]*model.DoctorSummary, error) {
	query := `
		SELECT u.id, u.name, dp.specialization, f.name AS facility_name
		FROM users u
		LEFT JOIN doctor_profiles dp ON dp.user_id = u.id
		LEFT JOIN facilities f ON f.id = dp.facility_id
		WHERE u.role = $1 AND u.enabled
		ORDER BY u.name, u.id
	`
	doctors := []*model.DoctorSummary{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &doctors, query, model.RoleDoctor); err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}
