package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"
	"github.com/deba607/AbJee-Travel-sub001/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityStore is the slice of the user store the chat core needs: identity
// reads plus presence writes. The auth subsystem owns everything else.
type IdentityStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	SetOnline(ctx context.Context, id string, online bool) error
}

var _ IdentityStore = (*repository.UserRepository)(nil)

type AuthService struct {
	users     IdentityStore
	jwtSecret []byte
}

func NewAuthService(users IdentityStore, jwtSecret string) *AuthService {
	return &AuthService{users: users, jwtSecret: []byte(jwtSecret)}
}

// Authenticate validates a bearer token and resolves it to an active user.
// Failures map to the handshake's typed rejections.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	return user, nil
}

// MintAccessToken signs a short-lived access token. The production issuer is
// the auth subsystem; this is used by dev tooling and tests.
func (s *AuthService) MintAccessToken(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
