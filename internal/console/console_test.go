package console

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourlook/safeline/internal/device"
	"github.com/yourlook/safeline/internal/domain"
	"github.com/yourlook/safeline/internal/incidents"
)

// mockAPI implements IncidentAPI for testing.
type mockAPI struct {
	mu      sync.Mutex
	list    []*domain.Incident
	updates chan *domain.Incident

	acked    []string
	statuses map[string]domain.IncidentStatus
	messages []string
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		updates:  make(chan *domain.Incident, 16),
		statuses: make(map[string]domain.IncidentStatus),
	}
}

func (m *mockAPI) ListIncidents(_ context.Context, _ incidents.IncidentFilters) ([]*domain.Incident, error) {
	return m.list, nil
}

func (m *mockAPI) Acknowledge(_ context.Context, incidentID, responderID string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, incidentID)
	return &domain.Incident{
		ID:         incidentID,
		Status:     domain.IncidentStatusAcknowledged,
		Responders: []string{responderID},
	}, nil
}

func (m *mockAPI) UpdateStatus(_ context.Context, incidentID string, status domain.IncidentStatus, _ string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[incidentID] = status
	return &domain.Incident{ID: incidentID, Status: status}, nil
}

func (m *mockAPI) AppendMessage(_ context.Context, _, _, _, text string) (*domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return &domain.ChatMessage{Message: text}, nil
}

func (m *mockAPI) Subscribe(_ int) (<-chan *domain.Incident, func()) {
	return m.updates, func() {}
}

// recordingHaptics records vibration patterns.
type recordingHaptics struct {
	mu       sync.Mutex
	patterns []device.Pattern
}

func (h *recordingHaptics) Vibrate(pattern device.Pattern) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.patterns = append(h.patterns, pattern)
}

func (h *recordingHaptics) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.patterns)
}

func activeIncident(id string, createdAt time.Time) *domain.Incident {
	return &domain.Incident{
		ID:        id,
		Status:    domain.IncidentStatusActive,
		CreatedAt: createdAt,
	}
}

func newTestConsole(api IncidentAPI, haptics device.Haptics) *Console {
	return NewConsole(api, haptics, "responder-1", "Sipho K", domain.RoleResponder)
}

func startConsole(t *testing.T, c *Console) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Start(ctx) }()
	return cancel
}

func TestConsole_NewAlertLatchAndHaptics(t *testing.T) {
	api := newMockAPI()
	haptics := &recordingHaptics{}
	console := newTestConsole(api, haptics)

	cancel := startConsole(t, console)
	defer cancel()

	api.updates <- activeIncident("inc-1", time.Now())

	assert.Eventually(t, console.HasNewAlert, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, haptics.count())
	assert.Equal(t, device.AlertPattern, haptics.patterns[0])

	console.DismissAlert()
	assert.False(t, console.HasNewAlert())
}

func TestConsole_DeduplicatesByIncidentID(t *testing.T) {
	api := newMockAPI()
	haptics := &recordingHaptics{}
	console := newTestConsole(api, haptics)

	cancel := startConsole(t, console)
	defer cancel()

	incident := activeIncident("inc-1", time.Now())
	api.updates <- incident
	api.updates <- incident
	api.updates <- incident

	assert.Eventually(t, func() bool {
		return len(console.Active()) == 1
	}, time.Second, 10*time.Millisecond)

	// Redelivery of a known incident neither duplicates the row nor
	// re-fires the alert cue.
	assert.Equal(t, 1, haptics.count())
}

func TestConsole_Partitions(t *testing.T) {
	now := time.Now()
	api := newMockAPI()
	api.list = []*domain.Incident{
		activeIncident("inc-old", now.Add(-time.Hour)),
		activeIncident("inc-new", now),
		{ID: "inc-done", Status: domain.IncidentStatusResolved, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "inc-ack", Status: domain.IncidentStatusAcknowledged, CreatedAt: now.Add(-30 * time.Minute)},
	}
	console := newTestConsole(api, nil)

	cancel := startConsole(t, console)
	defer cancel()

	assert.Eventually(t, func() bool {
		return len(console.Active()) == 3 && len(console.Resolved()) == 1
	}, time.Second, 10*time.Millisecond)

	active := console.Active()
	// Newest first; acknowledged and in-progress incidents stay active.
	assert.Equal(t, "inc-new", active[0].ID)
	assert.Equal(t, "inc-ack", active[1].ID)
	assert.Equal(t, "inc-old", active[2].ID)

	assert.Equal(t, "inc-done", console.Resolved()[0].ID)
}

func TestConsole_ResolvedUpdateMovesPartition(t *testing.T) {
	api := newMockAPI()
	console := newTestConsole(api, nil)

	cancel := startConsole(t, console)
	defer cancel()

	api.updates <- activeIncident("inc-1", time.Now())
	assert.Eventually(t, func() bool {
		return len(console.Active()) == 1
	}, time.Second, 10*time.Millisecond)

	api.updates <- &domain.Incident{ID: "inc-1", Status: domain.IncidentStatusResolved, CreatedAt: time.Now()}
	assert.Eventually(t, func() bool {
		return len(console.Active()) == 0 && len(console.Resolved()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestConsole_Actions(t *testing.T) {
	api := newMockAPI()
	console := newTestConsole(api, nil)

	acked, err := console.Acknowledge(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusAcknowledged, acked.Status)
	assert.Equal(t, []string{"inc-1"}, api.acked)

	_, err = console.MarkInProgress(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusInProgress, api.statuses["inc-1"])

	_, err = console.Resolve(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, api.statuses["inc-1"])

	require.NoError(t, console.SendMessage(context.Background(), "inc-1", "are you safe"))
	assert.Equal(t, []string{"are you safe"}, api.messages)
}

func TestConsole_RequiresResponderRole(t *testing.T) {
	api := newMockAPI()
	console := NewConsole(api, nil, "user-1", "Thandi M", domain.RoleCustomer)

	assert.False(t, console.CanMutate())

	_, err := console.Acknowledge(context.Background(), "inc-1")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = console.Resolve(context.Background(), "inc-1")
	assert.ErrorIs(t, err, ErrForbidden)

	err = console.SendMessage(context.Background(), "inc-1", "hello")
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, console.Start(context.Background()), ErrForbidden)
}

func TestConsole_AdminCanMutate(t *testing.T) {
	console := NewConsole(newMockAPI(), nil, "admin-1", "Admin", domain.RoleAdmin)
	assert.True(t, console.CanMutate())
}
