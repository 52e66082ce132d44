package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/tablebook/internal/account"
	"github.com/example/tablebook/internal/auth"
	"github.com/example/tablebook/internal/reservation/domain"
	"github.com/example/tablebook/internal/reservation/repository"
)

func newService(repo *repository.MemoryRepository) *account.Service {
	clock := domain.SystemClock{}
	return account.New(repo, auth.NewIssuer("test-secret", time.Hour, clock), clock, nil)
}

func TestRegisterHashesPassword(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newService(repo)

	created, err := svc.Register(context.Background(), account.RegisterRequest{
		UserID:      "diner-1",
		Password:    "hunter2",
		PhoneNumber: "010-1111-2222",
		Role:        domain.RoleCustomer,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.PasswordHash)
	require.NotContains(t, string(created.PasswordHash), "hunter2")
}

func TestRegisterRejectsDuplicateAndBadRole(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newService(repo)

	req := account.RegisterRequest{
		UserID:      "diner-1",
		Password:    "hunter2",
		PhoneNumber: "010-1111-2222",
		Role:        domain.RoleCustomer,
	}
	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrUserExists)

	req.UserID = "diner-2"
	req.Role = "ADMIN"
	_, err = svc.Register(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestAuthenticate(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newService(repo)

	_, err := svc.Register(context.Background(), account.RegisterRequest{
		UserID:      "diner-1",
		Password:    "hunter2",
		PhoneNumber: "010-1111-2222",
		Role:        domain.RoleCustomer,
	})
	require.NoError(t, err)

	token, err := svc.Authenticate(context.Background(), "diner-1", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = svc.Authenticate(context.Background(), "diner-1", "wrong")
	require.ErrorIs(t, err, domain.ErrBadCredentials)

	_, err = svc.Authenticate(context.Background(), "ghost", "hunter2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEditChangesPassword(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newService(repo)

	_, err := svc.Register(context.Background(), account.RegisterRequest{
		UserID:      "diner-1",
		Password:    "hunter2",
		PhoneNumber: "010-1111-2222",
		Role:        domain.RoleCustomer,
	})
	require.NoError(t, err)

	newPassword := "correct horse"
	_, err = svc.Edit(context.Background(), "diner-1", account.EditRequest{Password: &newPassword})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "diner-1", "hunter2")
	require.ErrorIs(t, err, domain.ErrBadCredentials)
	_, err = svc.Authenticate(context.Background(), "diner-1", "correct horse")
	require.NoError(t, err)
}

func TestDeleteCascadesOwnedStores(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newService(repo)

	_, err := svc.Register(context.Background(), account.RegisterRequest{
		UserID:      "owner-1",
		Password:    "hunter2",
		PhoneNumber: "010-1111-2222",
		Role:        domain.RoleOwner,
	})
	require.NoError(t, err)

	_, err = repo.CreateStore(context.Background(), domain.Store{Name: "bistro", OwnerID: "owner-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "owner-1"))
	_, err = repo.GetStoreByName(context.Background(), "bistro")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
