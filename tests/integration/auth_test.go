//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourlook/safeline/internal/testutil"
)

func TestAuth_RegisterAndLogin(t *testing.T) {
	client := newTestClient(t)

	email := uniqueEmail("register")
	id := registerUser(t, client, email, "password123", "Thandi M", "customer")
	assert.NotEmpty(t, id)

	client.LoginAs(t, email, "password123")
	assert.NotEmpty(t, client.CSRFToken, "login should set csrf cookie")

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, id, result.Data.ID)
	assert.Equal(t, email, result.Data.Email)
	assert.Equal(t, "Thandi M", result.Data.Name)
	assert.Equal(t, "customer", result.Data.Role)
}

func TestAuth_RegisterDefaultsToCustomer(t *testing.T) {
	client := newTestClient(t)

	email := uniqueEmail("default-role")
	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": "password123",
		"name":     "No Role",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			Role string `json:"role"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "customer", result.Data.Role)
}

func TestAuth_RegisterRejectsAdminRole(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":    uniqueEmail("admin-attempt"),
		"password": "password123",
		"name":     "Wannabe Admin",
		"role":     "admin",
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth_RegisterDuplicateEmail(t *testing.T) {
	client := newTestClient(t)

	email := uniqueEmail("duplicate")
	registerUser(t, client, email, "password123", "First", "customer")

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": "password123",
		"name":     "Second",
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAuth_LoginWrongPassword(t *testing.T) {
	client := newTestClient(t)

	email := uniqueEmail("wrong-pass")
	registerUser(t, client, email, "password123", "User", "customer")

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "not-the-password",
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_MeRequiresAuth(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_RefreshRotatesTokens(t *testing.T) {
	client := newTestClient(t)

	email := uniqueEmail("refresh")
	registerUser(t, client, email, "password123", "User", "customer")
	client.LoginAs(t, email, "password123")

	resp, err := client.POST("/api/v1/auth/refresh", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// New cookies still authenticate.
	resp, err = client.GET("/api/v1/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_LogoutClearsSession(t *testing.T) {
	client := newTestClient(t)

	email := uniqueEmail("logout")
	registerUser(t, client, email, "password123", "User", "customer")
	client.LoginAs(t, email, "password123")

	resp, err := client.POST("/api/v1/auth/logout", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The refresh token was revoked server-side.
	resp, err = client.POST("/api/v1/auth/refresh", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
