package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/repository"
	"github.com/jwalitptl/medvault-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
	"github.com/jwalitptl/medvault-api/pkg/logger"
	"github.com/jwalitptl/medvault-api/pkg/security"
)

// countingRepo records how often lookups reach the store.
type countingRepo struct {
	repository.UserRepository
	byEmail, byID int
	err           error
}

func (r *countingRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.byEmail++
	if r.err != nil {
		return nil, r.err
	}
	return r.UserRepository.GetByEmail(ctx, email)
}

func (r *countingRepo) Get(ctx context.Context, id int64) (*model.User, error) {
	r.byID++
	if r.err != nil {
		return nil, r.err
	}
	return r.UserRepository.Get(ctx, id)
}

func setup(t *testing.T) (*Service, *countingRepo, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	repo := &countingRepo{UserRepository: store.Users()}
	svc := NewService(repo, security.NewBcryptHasher(bcrypt.MinCost), time.Minute, logger.Nop())
	return svc, repo, store
}

func TestFindByIdentity_CachesHits(t *testing.T) {
	svc, repo, store := setup(t)
	store.AddUser(model.User{ID: 5, Email: "d@x.com", Name: "Dr. D", Role: model.RoleDoctor, Enabled: true})
	ctx := context.Background()

	u, err := svc.FindByIdentity(ctx, "D@x.com ")
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.ID)

	_, err = svc.FindByIdentity(ctx, "d@x.com")
	require.NoError(t, err)
	_, err = svc.FindByID(ctx, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.byEmail)
	assert.Equal(t, 0, repo.byID)
}

func TestFindByIdentity_ReturnsCopies(t *testing.T) {
	svc, _, store := setup(t)
	store.AddUser(model.User{ID: 1, Email: "p@x.com", Role: model.RolePatient, Enabled: true})

	u, err := svc.FindByIdentity(context.Background(), "p@x.com")
	require.NoError(t, err)
	u.Role = model.RoleAdmin

	again, err := svc.FindByIdentity(context.Background(), "p@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, again.Role)
}

func TestFind_NotFoundIsNotCached(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.FindByIdentity(ctx, "ghost@x.com")
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
		_, err = svc.FindByID(ctx, 99)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	}
	assert.Equal(t, 2, repo.byEmail)
	assert.Equal(t, 2, repo.byID)

	_, err := svc.FindByIdentity(ctx, "  ")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestFind_StoreFailureIsInternal(t *testing.T) {
	svc, repo, _ := setup(t)
	repo.err = errors.New("connection refused")

	_, err := svc.FindByID(context.Background(), 1)
	assert.Equal(t, apperrors.ErrInternal, apperrors.CodeOf(err))
}

func TestFind_DisabledUserIsForbidden(t *testing.T) {
	svc, repo, store := setup(t)
	store.AddUser(model.User{ID: 3, Email: "gone@x.com", Role: model.RoleDoctor, Enabled: false})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.FindByIdentity(ctx, "gone@x.com")
		assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
		_, err = svc.FindByID(ctx, 3)
		assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
	}
	assert.Equal(t, 1, repo.byEmail)
	assert.Equal(t, 0, repo.byID)
}

func TestListDoctors(t *testing.T) {
	svc, _, store := setup(t)
	d := store.AddUser(model.User{Email: "b@x.com", Name: "Dr. B", Role: model.RoleDoctor, Enabled: true})
	store.AddDoctorProfile(d.ID, "Cardiology", "City Hospital")
	store.AddUser(model.User{Email: "a@x.com", Name: "Dr. A", Role: model.RoleDoctor, Enabled: true})
	store.AddUser(model.User{Email: "p@x.com", Name: "Pat", Role: model.RolePatient, Enabled: true})

	doctors, err := svc.ListDoctors(context.Background())
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Dr. A", doctors[0].Name)
	assert.Nil(t, doctors[0].Specialization)
	require.NotNil(t, doctors[1].Hospital)
	assert.Equal(t, "City Hospital", *doctors[1].Hospital)
	assert.Equal(t, "Cardiology", *doctors[1].Specialization)
}

func TestEnsureAdmin(t *testing.T) {
	svc, _, store := setup(t)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "admin@x.com", "Admin", "admin-password")
	require.NoError(t, err)
	assert.True(t, created)

	admin, err := store.Users().GetByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.True(t, admin.Enabled)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("admin-password")))

	created, err = svc.EnsureAdmin(ctx, "admin@x.com", "Admin", "admin-password")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.EnsureAdmin(ctx, "", "Admin", "admin-password")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureAdmin_WeakPassword(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.EnsureAdmin(context.Background(), "admin@x.com", "Admin", "short")
	assert.ErrorIs(t, err, security.ErrPasswordTooShort)
}
