//go:build integration

package integration

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourlook/safeline/internal/testutil"
)

func TestIncidents_ActivateEmergency(t *testing.T) {
	client := newTestClient(t)
	victimID, _ := loginNewUser(t, client, "customer")

	incident := activateIncident(t, client)

	assert.NotEmpty(t, incident.ID)
	assert.Equal(t, victimID, incident.InitiatorID)
	assert.Equal(t, "active", incident.Status)
	assert.True(t, incident.HasLiveChat)
	assert.Empty(t, incident.Responders)
	assert.Empty(t, incident.Messages)
	assert.Equal(t, "12 Juta Street, Johannesburg", incident.CurrentLocation.Address)
	assert.Nil(t, incident.ResolvedAt)
}

func TestIncidents_ActivateRejectsInvalidLocation(t *testing.T) {
	client := newTestClientWithoutValidation()
	loginNewUser(t, client, "customer")

	resp, err := client.POST("/api/v1/incidents", map[string]interface{}{
		"location": map[string]interface{}{
			"latitude":  123.0,
			"longitude": 28.0,
			"address":   "nowhere",
		},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIncidents_ResponderLifecycle(t *testing.T) {
	victim := newTestClient(t)
	loginNewUser(t, victim, "customer")
	incident := activateIncident(t, victim)

	responder := newTestClient(t)
	responderID, _ := loginNewResponder(t, responder)

	// Acknowledge assigns the responder and moves status forward.
	resp, err := responder.POST("/api/v1/incidents/"+incident.ID+"/acknowledge", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &ack)
	assert.Equal(t, "acknowledged", ack.Data.Status)
	assert.Contains(t, ack.Data.Responders, responderID)

	// Second acknowledge is idempotent.
	resp, err = responder.POST("/api/v1/incidents/"+incident.ID+"/acknowledge", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	inProgress := updateIncidentStatus(t, responder, incident.ID, "in-progress")
	assert.Equal(t, "in-progress", inProgress.Status)

	resolved := updateIncidentStatus(t, responder, incident.ID, "resolved")
	assert.Equal(t, "resolved", resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestIncidents_ResolvedIsTerminal(t *testing.T) {
	victim := newTestClient(t)
	loginNewUser(t, victim, "customer")
	incident := activateIncident(t, victim)

	responder := newTestClient(t)
	loginNewResponder(t, responder)
	updateIncidentStatus(t, responder, incident.ID, "resolved")

	for _, status := range []string{"acknowledged", "in-progress", "resolved"} {
		resp, err := responder.POST("/api/v1/incidents/"+incident.ID+"/status", map[string]string{"status": status})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "transition to %s after resolve", status)
	}

	// Acknowledging a resolved incident is also rejected.
	resp, err := responder.POST("/api/v1/incidents/"+incident.ID+"/acknowledge", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestIncidents_LiveChat(t *testing.T) {
	victim := newTestClient(t)
	loginNewUser(t, victim, "customer")
	incident := activateIncident(t, victim)

	resp, err := victim.POST("/api/v1/incidents/"+incident.ID+"/messages", map[string]string{
		"message": "He is following me",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	responder := newTestClient(t)
	loginNewResponder(t, responder)
	resp, err = responder.POST("/api/v1/incidents/"+incident.ID+"/messages", map[string]string{
		"message": "Help is on the way. Are you safe right now?",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	got := getIncident(t, victim, incident.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "He is following me", got.Messages[0].Message)
	assert.Equal(t, "Help is on the way. Are you safe right now?", got.Messages[1].Message)
}

func TestIncidents_EmptyMessageRejected(t *testing.T) {
	client := newTestClientWithoutValidation()
	loginNewUser(t, client, "customer")
	incident := activateIncident(t, client)

	resp, err := client.POST("/api/v1/incidents/"+incident.ID+"/messages", map[string]string{
		"message": "   ",
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIncidents_LocationReportUpdatesCurrentOnly(t *testing.T) {
	client := newTestClient(t)
	loginNewUser(t, client, "customer")
	incident := activateIncident(t, client)

	resp, err := client.POST("/api/v1/incidents/"+incident.ID+"/location", map[string]interface{}{
		"latitude":  -26.1952,
		"longitude": 28.0341,
		"address":   "45 Empire Road, Parktown",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "45 Empire Road, Parktown", result.Data.CurrentLocation.Address)
	assert.Equal(t, "12 Juta Street, Johannesburg", result.Data.Location.Address,
		"activation snapshot must not change")
}

func TestIncidents_ListPartitionsByResolved(t *testing.T) {
	victim := newTestClient(t)
	loginNewUser(t, victim, "customer")
	open := activateIncident(t, victim)
	closed := activateIncident(t, victim)

	responder := newTestClient(t)
	loginNewResponder(t, responder)
	updateIncidentStatus(t, responder, closed.ID, "resolved")

	resp, err := responder.GET("/api/v1/incidents?resolved=false")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var active struct {
		Data []incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &active)

	ids := make([]string, 0, len(active.Data))
	for _, inc := range active.Data {
		ids = append(ids, inc.ID)
		assert.NotEqual(t, "resolved", inc.Status)
	}
	assert.Contains(t, ids, open.ID)
	assert.NotContains(t, ids, closed.ID)

	resp, err = responder.GET("/api/v1/incidents?resolved=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved struct {
		Data []incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &resolved)

	ids = ids[:0]
	for _, inc := range resolved.Data {
		ids = append(ids, inc.ID)
	}
	assert.Contains(t, ids, closed.ID)
}

func TestIncidents_CustomerCannotUseResponderRoutes(t *testing.T) {
	client := newTestClientWithoutValidation()
	loginNewUser(t, client, "customer")
	incident := activateIncident(t, client)

	resp, err := client.GET("/api/v1/incidents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.POST("/api/v1/incidents/"+incident.ID+"/acknowledge", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.POST("/api/v1/incidents/"+incident.ID+"/status", map[string]string{"status": "resolved"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEmergencyConfig_PublicBootstrap(t *testing.T) {
	client := newTestClient(t)

	// No login: the overlay fetches this before authentication.
	resp, err := client.GET("/api/v1/emergency/config")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			GestureHoldMs int64  `json:"gesture_hold_ms"`
			FallbackDial  string `json:"fallback_dial"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, int64(2000), result.Data.GestureHoldMs)
	assert.Equal(t, "112", result.Data.FallbackDial)
}

func TestIncidents_StreamDeliversUpdates(t *testing.T) {
	victim := newTestClientWithoutValidation()
	loginNewUser(t, victim, "customer")

	// Open the SSE stream with the victim's cookies.
	req, err := http.NewRequest(http.MethodGet, testServer.URL+"/api/v1/incidents/stream", nil)
	require.NoError(t, err)
	resp, err := victim.HTTPClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	incident := activateIncident(t, victim)

	events := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				events <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	select {
	case data := <-events:
		assert.Contains(t, data, incident.ID)
		assert.Contains(t, data, `"status":"active"`)
	case <-time.After(5 * time.Second):
		t.Fatal("no incident event received on stream")
	}
}
