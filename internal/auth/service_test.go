package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/congo_save/internal/identity"
)

func TestLoginIssuesVerifiableToken(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryRepository()).WithCost(bcrypt.MinCost)
	svc := NewService("secret", time.Hour, ids)
	ctx := context.Background()

	user, err := ids.Register(ctx, identity.Credentials{Email: "kim@example.com", PIN: "1111"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, identity.Credentials{Email: "kim@example.com", PIN: "1111"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), res.ExpiresIn)

	uid, err := svc.Verify(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, uid)

	_, err = svc.Login(ctx, identity.Credentials{Email: "kim@example.com", PIN: "2222"})
	assert.ErrorIs(t, err, identity.ErrInvalidPIN)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryRepository()).WithCost(bcrypt.MinCost)
	svc := NewService("secret", time.Hour, ids)
	ctx := context.Background()
	now := time.Now()

	forged, err := SignHS256(uuid.New(), []byte("other"), now, time.Hour)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignHS256(uuid.New(), []byte("secret"), now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unknown, err := SignHS256(uuid.New(), []byte("secret"), now, time.Hour)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, unknown)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	_, err = svc.Verify(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
