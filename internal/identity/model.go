package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidPIN   = errors.New("invalid PIN")
	ErrWeakPIN      = errors.New("PIN must be 4 to 8 digits")
	ErrInvalidEmail = errors.New("invalid email")
)

// User is a registered saver.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	PINHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials request structure.
type Credentials struct {
	Email string
	PIN   string
}
