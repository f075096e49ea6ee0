// Package jwt implements token issuing and validation with signed JWTs for
// access and stored random tokens for refresh.
package jwt

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yourlook/safeline/internal/domain"
	"github.com/yourlook/safeline/internal/identity"
)

// Config holds JWT authenticator configuration.
type Config struct {
	Secret               string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

// Authenticator implements identity.Authenticator with HMAC-signed JWTs.
type Authenticator struct {
	config Config
	repo   identity.Repository
}

// NewAuthenticator creates a JWT authenticator.
func NewAuthenticator(config Config, repo identity.Repository) (*Authenticator, error) {
	if config.Secret == "" {
		return nil, errors.New("jwt: secret is required")
	}
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = 30 * 24 * time.Hour
	}
	return &Authenticator{config: config, repo: repo}, nil
}

type accessClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateTokens issues an access/refresh token pair for the user.
func (a *Authenticator) GenerateTokens(ctx context.Context, user *domain.User) (*identity.TokenPair, error) {
	now := time.Now()
	claims := accessClaims{
		Name: user.Name,
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	stored := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: now.Add(a.config.RefreshTokenDuration),
		CreatedAt: now,
	}
	if err := a.repo.SaveRefreshToken(ctx, stored); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &identity.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// ValidateAccessToken parses and verifies an access token.
func (a *Authenticator) ValidateAccessToken(_ context.Context, token string) (string, string, domain.Role, error) {
	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", "", "", identity.ErrInvalidToken
	}

	role := domain.Role(claims.Role)
	if !role.IsValid() {
		return "", "", "", identity.ErrInvalidToken
	}

	return claims.Subject, claims.Name, role, nil
}

// RefreshTokens rotates a refresh token: the old token is revoked and a
// fresh pair is issued.
func (a *Authenticator) RefreshTokens(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	tokenHash := hashToken(refreshToken)

	stored, err := a.repo.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, identity.ErrInvalidToken
	}
	if stored.IsExpired() {
		_ = a.repo.DeleteRefreshToken(ctx, tokenHash)
		return nil, identity.ErrInvalidToken
	}

	user, err := a.repo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, identity.ErrInvalidToken
	}

	if err := a.repo.DeleteRefreshToken(ctx, tokenHash); err != nil {
		return nil, fmt.Errorf("revoke old token: %w", err)
	}

	return a.GenerateTokens(ctx, user)
}

// RevokeRefreshToken invalidates a refresh token.
func (a *Authenticator) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return a.repo.DeleteRefreshToken(ctx, hashToken(refreshToken))
}

func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
