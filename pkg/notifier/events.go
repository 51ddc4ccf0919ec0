// Package notifier is the in-process pub/sub bus for batch events.
// Subscribers register interest in a batch id and receive typed events in
// publish order; slow subscribers lose oldest events rather than blocking
// publishers.
package notifier

import (
	"time"

	"github.com/condenserhq/condenser/pkg/models"
)

// EventType identifies a bus event. The names are the wire values clients
// see on the real-time channel.
type EventType string

// Server-to-subscriber event types.
const (
	EventConnected             EventType = "Connected"
	EventJoinedBatchGroup      EventType = "JoinedBatchGroup"
	EventLeftBatchGroup        EventType = "LeftBatchGroup"
	EventProgressUpdate        EventType = "ProgressUpdate"
	EventSegmentStatusUpdate   EventType = "SegmentStatusUpdate"
	EventStageChanged          EventType = "StageChanged"
	EventBatchCompleted        EventType = "BatchCompleted"
	EventBatchFailed           EventType = "BatchFailed"
	EventCancellationRequested EventType = "CancellationRequested"
	EventSubscriberLagged      EventType = "SubscriberLagged"
	EventSystemStatusUpdate    EventType = "SystemStatusUpdate"
	EventPong                  EventType = "Pong"
)

// Event is one bus message.
type Event struct {
	Type      EventType   `json:"type"`
	BatchID   string      `json:"batchId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StageChangedPayload accompanies EventStageChanged.
type StageChangedPayload struct {
	Stage models.Stage `json:"stage"`
	Info  string       `json:"info,omitempty"`
}

// BatchCompletedPayload accompanies EventBatchCompleted. Cancelled batches
// also complete through this event with Cancelled set.
type BatchCompletedPayload struct {
	BatchID          string                `json:"batchId"`
	Summary          string                `json:"summary,omitempty"`
	Cancelled        bool                  `json:"cancelled"`
	Partial          *models.PartialResult `json:"partial,omitempty"`
	Completed        int                   `json:"completed"`
	Failed           int                   `json:"failed"`
	Total            int                   `json:"total"`
	ProcessingTimeMs int64                 `json:"processingTimeMs"`
}

// BatchFailedPayload accompanies EventBatchFailed.
type BatchFailedPayload struct {
	BatchID   string `json:"batchId"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// LaggedPayload accompanies EventSubscriberLagged and reports how many
// events were dropped since the last delivery.
type LaggedPayload struct {
	Dropped int `json:"dropped"`
}

func newEvent(t EventType, batchID string, payload interface{}) Event {
	return Event{Type: t, BatchID: batchID, Timestamp: time.Now().UTC(), Payload: payload}
}
