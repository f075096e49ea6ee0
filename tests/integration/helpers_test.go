//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yourlook/safeline/internal/testutil"
)

var userSeq atomic.Int64

// uniqueEmail returns an email address unused by any other test.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d-%d@example.com", prefix, time.Now().UnixNano(), userSeq.Add(1))
}

// incidentData mirrors the incident JSON envelope payload.
type incidentData struct {
	ID              string   `json:"id"`
	InitiatorID     string   `json:"initiator_id"`
	InitiatorName   string   `json:"initiator_name"`
	Status          string   `json:"status"`
	Responders      []string `json:"responders"`
	HasLiveChat     bool     `json:"has_live_chat"`
	Location        locationData
	CurrentLocation locationData `json:"current_location"`
	Messages        []struct {
		ID         string `json:"id"`
		SenderID   string `json:"sender_id"`
		SenderName string `json:"sender_name"`
		Message    string `json:"message"`
	} `json:"messages"`
	ResolvedAt *string `json:"resolved_at"`
}

type locationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// registerUser creates an account through the API and returns its ID.
func registerUser(t *testing.T, client *testutil.Client, email, password, name, role string) string {
	t.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}
	if role != "" {
		payload["role"] = role
	}

	resp, err := client.POST("/api/v1/auth/register", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.ID
}

// loginNewUser registers a fresh account with the given role and logs the
// client in as that account. Returns the user ID and email.
func loginNewUser(t *testing.T, client *testutil.Client, role string) (id, email string) {
	t.Helper()

	email = uniqueEmail(role)
	password := "password123"
	id = registerUser(t, client, email, password, "Test "+role, role)
	client.LoginAs(t, email, password)
	return id, email
}

// loginNewResponder registers and logs in a responder, then puts them on
// duty so alert fan-out includes their channels.
func loginNewResponder(t *testing.T, client *testutil.Client) (id, email string) {
	t.Helper()

	id, email = loginNewUser(t, client, "responder")

	resp, err := client.PUT("/api/v1/alerts/duty", map[string]bool{"on_duty": true})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	return id, email
}

// createAlertChannel creates an alert channel for the logged-in responder.
func createAlertChannel(t *testing.T, client *testutil.Client, channelType, target string) string {
	t.Helper()

	resp, err := client.POST("/api/v1/alerts/channels", map[string]string{
		"type":   channelType,
		"target": target,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.ID
}

var testLocation = map[string]interface{}{
	"latitude":  -26.2041,
	"longitude": 28.0473,
	"address":   "12 Juta Street, Johannesburg",
}

// activateIncident activates an emergency incident for the logged-in user.
func activateIncident(t *testing.T, client *testutil.Client) incidentData {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents", map[string]interface{}{
		"location": testLocation,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// getIncident fetches an incident by ID.
func getIncident(t *testing.T, client *testutil.Client, id string) incidentData {
	t.Helper()

	resp, err := client.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// updateIncidentStatus transitions an incident as the logged-in responder.
func updateIncidentStatus(t *testing.T, client *testutil.Client, id, status string) incidentData {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents/"+id+"/status", map[string]string{"status": status})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}
