package service

import (
	"context"
	"testing"

	"vitachat-backend/models"
	"vitachat-backend/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccountStore struct {
	byEmail map[string]*models.User
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{byEmail: map[string]*models.User{}}
}

func (f *fakeAccountStore) Create(_ context.Context, user *models.User) error {
	if _, exists := f.byEmail[user.Email]; exists {
		return repository.ErrEmailExists
	}
	user.ID = uuid.New()
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeAccountStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func TestUserService_Register(t *testing.T) {
	t.Run("happy path - email normalized and password hashed", func(t *testing.T) {
		store := newFakeAccountStore()
		svc := NewUserService(store)

		result, err := svc.Register(context.Background(), RegisterRequest{
			Email:    "  User@Example.COM ",
			Password: "hunter22",
		})
		require.NoError(t, err)

		assert.Equal(t, "user@example.com", result.User.Email)
		assert.NotEqual(t, "hunter22", result.User.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte("hunter22")))
	})

	t.Run("sad path - duplicate email", func(t *testing.T) {
		store := newFakeAccountStore()
		svc := NewUserService(store)

		_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "pw1"})
		require.NoError(t, err)
		_, err = svc.Register(context.Background(), RegisterRequest{Email: "A@example.com", Password: "pw2"})
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("sad path - blank fields", func(t *testing.T) {
		svc := NewUserService(newFakeAccountStore())

		_, err := svc.Register(context.Background(), RegisterRequest{Email: " ", Password: "pw"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
		_, err = svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "  "})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestUserService_Authenticate(t *testing.T) {
	store := newFakeAccountStore()
	svc := NewUserService(store)
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	t.Run("happy path - valid credentials", func(t *testing.T) {
		result, err := svc.Authenticate(context.Background(), AuthenticateRequest{
			Email:    "A@Example.com",
			Password: "correct-horse",
		})
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", result.User.Email)
	})

	t.Run("sad path - wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), AuthenticateRequest{
			Email:    "a@example.com",
			Password: "wrong",
		})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("sad path - unknown email looks identical", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), AuthenticateRequest{
			Email:    "nobody@example.com",
			Password: "correct-horse",
		})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
