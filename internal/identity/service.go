package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourlook/safeline/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair holds an access token and its refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Authenticator issues and validates tokens.
type Authenticator interface {
	GenerateTokens(ctx context.Context, user *domain.User) (*TokenPair, error)
	ValidateAccessToken(ctx context.Context, token string) (userID, name string, role domain.Role, err error)
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error)
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}

// UserCreatedHandler is invoked after a user is created. Failures are
// logged, not propagated: registration must not fail because a side
// effect did.
type UserCreatedHandler interface {
	OnUserCreated(ctx context.Context, user *domain.User) error
}

// Service provides identity business logic.
type Service struct {
	repo          Repository
	auth          Authenticator
	onUserCreated UserCreatedHandler
}

// NewService creates a new identity service. onUserCreated may be nil.
func NewService(repo Repository, auth Authenticator, onUserCreated UserCreatedHandler) *Service {
	return &Service{
		repo:          repo,
		auth:          auth,
		onUserCreated: onUserCreated,
	}
}

// RegisterInput contains registration data.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// Register creates a new user account. Accounts self-select customer,
// provider, or responder; the admin role is never self-assignable.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	role := domain.Role(input.Role)
	if input.Role == "" {
		role = domain.RoleCustomer
	}
	if !role.IsValid() || role == domain.RoleAdmin {
		return nil, ErrInvalidRole
	}

	if _, err := s.repo.GetUserByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:    input.Email,
		Name:     input.Name,
		Password: string(hash),
		Role:     role,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID, "role", user.Role)

	if s.onUserCreated != nil {
		if err := s.onUserCreated.OnUserCreated(ctx, user); err != nil {
			slog.Error("user created handler failed", "user_id", user.ID, "error", err)
		}
	}

	return user, nil
}

// LoginInput contains login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// Login authenticates a user and issues tokens.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, *TokenPair, error) {
	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.auth.GenerateTokens(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	slog.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// RefreshTokens exchanges a valid refresh token for a new pair.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.auth.RefreshTokens(ctx, refreshToken)
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.auth.RevokeRefreshToken(ctx, refreshToken)
}

// GetUserByID retrieves a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ValidateToken validates an access token for the auth middleware.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, string, domain.Role, error) {
	return s.auth.ValidateAccessToken(ctx, token)
}
