package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/congo_save/internal/identity"
)

// Service issues and verifies access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	ids    *identity.Service
	now    func() time.Time
}

// NewService builds an auth service signing with secret.
func NewService(secret string, ttl time.Duration, ids *identity.Service) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, ids: ids, now: time.Now}
}

// TokenResponse is returned on login.
type TokenResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
}

// Login validates credentials and issues an access token.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (TokenResponse, error) {
	user, err := s.ids.Authenticate(ctx, creds)
	if err != nil {
		return TokenResponse{}, err
	}
	token, err := SignHS256(user.ID, s.secret, s.now(), s.ttl)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{UserID: user.ID, AccessToken: token, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify returns the user a token was issued to, provided the user still
// exists.
func (s *Service) Verify(ctx context.Context, token string) (uuid.UUID, error) {
	uid, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := s.ids.FindByID(ctx, uid); err != nil {
		return uuid.Nil, err
	}
	return uid, nil
}
