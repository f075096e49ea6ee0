package incidents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourlook/safeline/internal/domain"
)

func TestHub_PublishFansOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	first, cancelFirst := hub.Subscribe(4)
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe(4)
	defer cancelSecond()

	incident := &domain.Incident{ID: "inc-1", Status: domain.IncidentStatusActive}
	hub.Publish(incident)

	assert.Equal(t, incident, <-first)
	assert.Equal(t, incident, <-second)
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Buffer of one, never drained.
	slow, cancel := hub.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(&domain.Incident{ID: "inc-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	// The slow subscriber keeps exactly its buffered snapshot.
	require.Len(t, slow, 1)
}

func TestHub_CancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	updates, cancel := hub.Subscribe(4)
	cancel()

	// Channel is closed after cancel.
	_, open := <-updates
	assert.False(t, open)

	// Publishing after cancel must not panic.
	hub.Publish(&domain.Incident{ID: "inc-1"})

	// Cancel is safe to call twice.
	cancel()
}

func TestHub_CloseClosesSubscribers(t *testing.T) {
	hub := NewHub()

	updates, cancel := hub.Subscribe(4)
	defer cancel()

	hub.Close()

	_, open := <-updates
	assert.False(t, open)

	// Subscribing after close yields a closed channel.
	late, lateCancel := hub.Subscribe(4)
	defer lateCancel()
	_, open = <-late
	assert.False(t, open)
}
