package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourlook/safeline/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	users          map[string]*domain.User
	createUserErr  error
	getUserByEmail func(email string) (*domain.User, error)
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockRepository) CreateUser(_ context.Context, user *domain.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
	user.ID = "test-user-id"
	m.users[user.Email] = user
	return nil
}

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if m.getUserByEmail != nil {
		return m.getUserByEmail(email)
	}
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) UpdateUser(_ context.Context, _ *domain.User) error {
	return nil
}

func (m *mockRepository) SaveRefreshToken(_ context.Context, _ *domain.RefreshToken) error {
	return nil
}

func (m *mockRepository) GetRefreshToken(_ context.Context, _ string) (*domain.RefreshToken, error) {
	return nil, ErrInvalidToken
}

func (m *mockRepository) DeleteRefreshToken(_ context.Context, _ string) error {
	return nil
}

func (m *mockRepository) DeleteUserRefreshTokens(_ context.Context, _ string) error {
	return nil
}

// mockAuthenticator implements Authenticator for testing.
type mockAuthenticator struct{}

func (m *mockAuthenticator) GenerateTokens(_ context.Context, _ *domain.User) (*TokenPair, error) {
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthenticator) ValidateAccessToken(_ context.Context, _ string) (string, string, domain.Role, error) {
	return "", "", "", nil
}

func (m *mockAuthenticator) RefreshTokens(_ context.Context, _ string) (*TokenPair, error) {
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthenticator) RevokeRefreshToken(_ context.Context, _ string) error {
	return nil
}

// mockUserCreatedHandler implements UserCreatedHandler for testing.
type mockUserCreatedHandler struct {
	called       bool
	receivedUser *domain.User
	err          error
}

func (m *mockUserCreatedHandler) OnUserCreated(_ context.Context, user *domain.User) error {
	m.called = true
	m.receivedUser = user
	return m.err
}

func TestRegister_CallsUserCreatedHandler(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	auth := &mockAuthenticator{}
	handler := &mockUserCreatedHandler{}

	service := NewService(repo, auth, handler)

	// Act
	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, handler.called, "handler should be called")
	assert.Equal(t, user.ID, handler.receivedUser.ID)
	assert.Equal(t, user.Email, handler.receivedUser.Email)
}

func TestRegister_DefaultsToCustomerRole(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, user.Role)
}

func TestRegister_AcceptsSelfServiceRoles(t *testing.T) {
	for _, role := range []string{"customer", "provider", "responder"} {
		t.Run(role, func(t *testing.T) {
			repo := newMockRepository()
			service := NewService(repo, &mockAuthenticator{}, nil)

			user, err := service.Register(context.Background(), RegisterInput{
				Email:    "test@example.com",
				Password: "password123",
				Name:     "Test User",
				Role:     role,
			})

			require.NoError(t, err)
			assert.Equal(t, domain.Role(role), user.Role)
		})
	}
}

func TestRegister_RejectsAdminRole(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
		Role:     "admin",
	})

	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRegister_RejectsUnknownRole(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
		Role:     "superuser",
	})

	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRegister_HashesPassword(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	require.NoError(t, err)
	assert.NotEqual(t, "password123", user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")))
}

func TestRegister_ContinuesIfHandlerFails(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	auth := &mockAuthenticator{}
	handler := &mockUserCreatedHandler{err: errors.New("handler error")}

	service := NewService(repo, auth, handler)

	// Act
	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	// Assert: registration succeeds despite handler error
	require.NoError(t, err)
	assert.NotNil(t, user)
	assert.True(t, handler.called, "handler should still be called")
}

func TestRegister_WorksWithNilHandler(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	auth := &mockAuthenticator{}

	service := NewService(repo, auth, nil) // nil handler

	// Act
	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, user)
	assert.Equal(t, "test@example.com", user.Email)
}

func TestRegister_EmailAlreadyExists(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	repo.users["existing@example.com"] = &domain.User{Email: "existing@example.com"}
	auth := &mockAuthenticator{}
	handler := &mockUserCreatedHandler{}

	service := NewService(repo, auth, handler)

	// Act
	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "existing@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	// Assert
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.False(t, handler.called, "handler should not be called for duplicate email")
}

func TestRegister_CreateUserFails(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	repo.createUserErr = errors.New("database error")
	auth := &mockAuthenticator{}
	handler := &mockUserCreatedHandler{}

	service := NewService(repo, auth, handler)

	// Act
	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	// Assert
	assert.Nil(t, user)
	assert.Error(t, err)
	assert.False(t, handler.called, "handler should not be called if user creation fails")
}

func registerTestUser(t *testing.T, repo *mockRepository, email, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{
		ID:       "user-" + email,
		Email:    email,
		Name:     "Test User",
		Password: string(hash),
		Role:     domain.RoleCustomer,
	}
	repo.users[email] = user
	return user
}

func TestLogin_Success(t *testing.T) {
	repo := newMockRepository()
	want := registerTestUser(t, repo, "test@example.com", "password123")
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, tokens, err := service.Login(context.Background(), LoginInput{
		Email:    "test@example.com",
		Password: "password123",
	})

	require.NoError(t, err)
	assert.Equal(t, want.ID, user.ID)
	require.NotNil(t, tokens)
	assert.Equal(t, "access", tokens.AccessToken)
	assert.Equal(t, "refresh", tokens.RefreshToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	repo := newMockRepository()
	registerTestUser(t, repo, "test@example.com", "password123")
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, tokens, err := service.Login(context.Background(), LoginInput{
		Email:    "test@example.com",
		Password: "wrong-password",
	})

	assert.Nil(t, user)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, tokens, err := service.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "password123",
	})

	assert.Nil(t, user)
	assert.Nil(t, tokens)
	// Unknown email reads the same as a wrong password to the caller.
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
