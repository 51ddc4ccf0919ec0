package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condenserhq/condenser/pkg/models"
)

func collect(t *testing.T, s *Subscriber, n int) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "subscription closed early")
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestHub_PublishReachesBatchSubscribers(t *testing.T) {
	h := NewHub(0, nil)
	defer h.Shutdown()

	s1 := h.Subscribe("batch-1")
	s2 := h.Subscribe("batch-1")
	other := h.Subscribe("batch-2")
	defer s1.Close()
	defer s2.Close()
	defer other.Close()

	h.Publish("batch-1", EventStageChanged, StageChangedPayload{Stage: models.StageMerging})

	for _, s := range []*Subscriber{s1, s2} {
		events := collect(t, s, 1)
		assert.Equal(t, EventStageChanged, events[0].Type)
		assert.Equal(t, "batch-1", events[0].BatchID)
	}
	assert.Empty(t, len(other.Events()))
	assert.Equal(t, 2, h.SubscriberCount("batch-1"))
}

func TestHub_OrderPreservedPerSubscriber(t *testing.T) {
	h := NewHub(0, nil)
	defer h.Shutdown()

	s := h.Subscribe("batch-1")
	defer s.Close()

	for i := 0; i < 20; i++ {
		h.Publish("batch-1", EventProgressUpdate, i)
	}

	events := collect(t, s, 20)
	for i, ev := range events {
		assert.Equal(t, i, ev.Payload)
	}
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub(8, nil)
	defer h.Shutdown()

	s := h.Subscribe("batch-1")
	defer s.Close()

	// Flood while the consumer reads nothing. The queue holds 8; the rest
	// must be dropped without blocking the publisher.
	publishDone := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			h.Publish("batch-1", EventProgressUpdate, i)
		}
		h.Publish("batch-1", EventBatchCompleted, BatchCompletedPayload{BatchID: "batch-1"})
		close(publishDone)
	}()

	select {
	case <-publishDone:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	var sawLagged, sawCompleted bool
	deadline := time.After(2 * time.Second)
	for !sawCompleted {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok)
			switch ev.Type {
			case EventSubscriberLagged:
				sawLagged = true
				assert.Greater(t, ev.Payload.(LaggedPayload).Dropped, 0)
			case EventBatchCompleted:
				sawCompleted = true
			}
		case <-deadline:
			t.Fatal("terminal event never delivered")
		}
	}
	assert.True(t, sawLagged)
}

func TestHub_SendToTargetsOneSubscriber(t *testing.T) {
	h := NewHub(0, nil)
	defer h.Shutdown()

	s1 := h.Subscribe("batch-1")
	s2 := h.Subscribe("batch-1")
	defer s1.Close()
	defer s2.Close()

	h.SendTo(s1, EventPong, "", nil)

	events := collect(t, s1, 1)
	assert.Equal(t, EventPong, events[0].Type)

	select {
	case ev := <-s2.Events():
		t.Fatalf("unexpected event for other subscriber: %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub(0, nil)
	defer h.Shutdown()

	s1 := h.Subscribe("batch-1")
	s2 := h.Subscribe("batch-2")
	defer s1.Close()
	defer s2.Close()

	h.Broadcast(EventSystemStatusUpdate, "maintenance in 5m")

	assert.Equal(t, EventSystemStatusUpdate, collect(t, s1, 1)[0].Type)
	assert.Equal(t, EventSystemStatusUpdate, collect(t, s2, 1)[0].Type)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(0, nil)

	s := h.Subscribe("batch-1")
	s.Close()
	assert.Equal(t, 0, h.SubscriberCount("batch-1"))

	// Publishing after unsubscribe must not panic or deliver.
	h.Publish("batch-1", EventProgressUpdate, nil)

	select {
	case _, ok := <-s.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel never closed")
	}
}

func TestHub_PublishProgressImplementsSink(t *testing.T) {
	h := NewHub(0, nil)
	defer h.Shutdown()

	s := h.Subscribe("batch-1")
	defer s.Close()

	h.PublishProgress(models.ProgressSnapshot{BatchID: "batch-1", OverallPct: 42})

	events := collect(t, s, 1)
	assert.Equal(t, EventProgressUpdate, events[0].Type)
	snap := events[0].Payload.(models.ProgressSnapshot)
	assert.InDelta(t, 42.0, snap.OverallPct, 0.001)
}

func TestHub_ShutdownClosesSubscribers(t *testing.T) {
	h := NewHub(0, nil)
	s := h.Subscribe("batch-1")

	h.Shutdown()

	select {
	case _, ok := <-s.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel never closed")
	}

	// Subscriptions after shutdown come back already closed.
	late := h.Subscribe("batch-1")
	_, ok := <-late.Events()
	assert.False(t, ok)
}
