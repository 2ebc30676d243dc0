package service

import (
	"context"
	"errors"
	"strings"

	"vitachat-backend/models"
	"vitachat-backend/repository"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// AccountStore is the persistence surface the user service needs.
// *repository.UserRepository satisfies it.
type AccountStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserService handles account registration and credential checks
type UserService struct {
	store AccountStore
}

// NewUserService creates a new user service
func NewUserService(store AccountStore) *UserService {
	return &UserService{store: store}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string
	Password string
}

// RegisterResult represents the result of a registration
type RegisterResult struct {
	User *models.User
}

// Register creates an account with a normalized email and a bcrypt-hashed
// password.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		return nil, ErrInvalidRequest
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return &RegisterResult{User: user}, nil
}

// AuthenticateRequest represents a login request
type AuthenticateRequest struct {
	Email    string
	Password string
}

// AuthenticateResult represents the result of a credential check
type AuthenticateResult struct {
	User *models.User
}

// Authenticate verifies the credentials and returns the matching user.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, req AuthenticateRequest) (*AuthenticateResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &AuthenticateResult{User: user}, nil
}
