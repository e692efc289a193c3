package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService() *Service {
	return NewService(NewMemoryRepository()).WithCost(bcrypt.MinCost)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Email: " Ada@Example.com ", PIN: "1234"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "1234", user.PINHash)

	authed, err := svc.Authenticate(ctx, Credentials{Email: "ada@example.com", PIN: "1234"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, err = svc.Authenticate(ctx, Credentials{Email: "ada@example.com", PIN: "9999"})
	assert.ErrorIs(t, err, ErrInvalidPIN)

	_, err = svc.Register(ctx, Credentials{Email: "ada@example.com", PIN: "4321"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestRegisterValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Email: "nobody", PIN: "1234"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
	for _, pin := range []string{"", "123", "123456789", "12a4"} {
		_, err := svc.Register(ctx, Credentials{Email: "x@example.com", PIN: pin})
		assert.ErrorIs(t, err, ErrWeakPIN, pin)
	}
}

func TestVerifyPIN(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Email: "pin@example.com", PIN: "2468"})
	require.NoError(t, err)

	assert.NoError(t, svc.VerifyPIN(ctx, user.ID, "2468"))
	assert.ErrorIs(t, svc.VerifyPIN(ctx, user.ID, "1357"), ErrInvalidPIN)
	assert.ErrorIs(t, svc.VerifyPIN(ctx, uuid.New(), "2468"), ErrUserNotFound)
}
