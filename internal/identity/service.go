package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service manages identity lifecycle.
type Service struct {
	repo Repository
	cost int
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register creates a user and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if !strings.Contains(email, "@") {
		return User{}, ErrInvalidEmail
	}
	if err := validatePIN(creds.PIN); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash pin: %w", err)
	}

	user := User{
		ID:        uuid.New(),
		Email:     email,
		PINHash:   string(hash),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies an email and PIN pair.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(creds.Email)))
	if err != nil {
		return User{}, err
	}
	if err := compare(user, creds.PIN); err != nil {
		return User{}, err
	}
	return user, nil
}

// VerifyPIN checks the transaction PIN of userID.
func (s *Service) VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return compare(user, pin)
}

// FindByID returns the user with id.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.FindByID(ctx, id)
}

func compare(user User, pin string) error {
	err := bcrypt.CompareHashAndPassword([]byte(user.PINHash), []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPIN
	}
	return err
}

func validatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 8 {
		return ErrWeakPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrWeakPIN
		}
	}
	return nil
}
