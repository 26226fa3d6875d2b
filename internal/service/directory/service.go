package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/repository"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
	"github.com/jwalitptl/medvault-api/pkg/logger"
	"github.com/jwalitptl/medvault-api/pkg/security"
)

// Directory resolves caller identities and doctor ids to users.
type Directory interface {
	FindByIdentity(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// Service is a read-through cache over the user store. Only hits are cached;
// roles never change, so a stale entry can at most lag a disable.
type Service struct {
	repo   repository.UserRepository
	hasher security.PasswordHasher
	cache  *cache.Cache
	logger *logger.Logger
}

func NewService(repo repository.UserRepository, hasher security.PasswordHasher, ttl time.Duration, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		repo:   repo,
		hasher: hasher,
		cache:  cache.New(ttl, 2*ttl),
		logger: log,
	}
}

func emailKey(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

func idKey(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

func (s *Service) cached(key string) (*model.User, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	u := *v.(*model.User)
	return &u, true
}

func (s *Service) remember(u *model.User) {
	stored := *u
	s.cache.Set(emailKey(u.Email), &stored, cache.DefaultExpiration)
	s.cache.Set(idKey(u.ID), &stored, cache.DefaultExpiration)
}

func (s *Service) FindByIdentity(ctx context.Context, email string) (*model.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperrors.NotFound("user", nil)
	}
	if u, ok := s.cached(emailKey(email)); ok {
		return enabled(u)
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, lookupError(err)
	}
	s.remember(u)
	return enabled(u)
}

func (s *Service) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if u, ok := s.cached(idKey(id)); ok {
		return enabled(u)
	}

	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	s.remember(u)
	return enabled(u)
}

func (s *Service) ListDoctors(ctx context.Context) ([]*model.DoctorSummary, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return doctors, nil
}

// EnsureAdmin creates the bootstrap administrator if no user owns the email.
// It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, name, password string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.HasRole(model.RoleAdmin) {
			s.logger.Warn("bootstrap admin email belongs to a non-admin user", "email", existing.Email, "role", string(existing.Role))
		}
		return false, nil
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &model.User{
		Email:        email,
		Name:         name,
		Role:         model.RoleAdmin,
		PasswordHash: hash,
		Enabled:      true,
	}
	if err := s.repo.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("bootstrap admin created", "email", admin.Email, "user_id", admin.ID)
	return true, nil
}

func lookupError(err error) error {
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return apperrors.Classify(err)
}

// enabled rejects disabled accounts: they can neither act as a caller nor be
// booked or reviewed.
func enabled(u *model.User) (*model.User, error) {
	if !u.Enabled {
		return nil, apperrors.Forbidden("user account is disabled")
	}
	return u, nil
}
