package notifier

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/condenserhq/condenser/pkg/models"
)

// DefaultSubscriberBuffer bounds the per-subscriber event queue.
const DefaultSubscriberBuffer = 64

// Hub is the process-wide event bus keyed by batch id.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscriber // batch id → subscriber id → subscriber
	bufferSize  int
	logger      *slog.Logger
	closed      bool
}

// NewHub creates the bus. bufferSize <= 0 selects the default.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]*Subscriber),
		bufferSize:  bufferSize,
		logger:      logger.With("component", "notifier"),
	}
}

// Subscribe registers interest in a batch and returns the subscription.
// The caller must eventually call Unsubscribe or Close on it.
func (h *Hub) Subscribe(batchID string) *Subscriber {
	s := &Subscriber{
		ID:      uuid.New().String(),
		BatchID: batchID,
		hub:     h,
		out:     make(chan Event),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		limit:   h.bufferSize,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.closed = true
		close(s.out)
		close(s.done)
		return s
	}
	group, ok := h.subscribers[batchID]
	if !ok {
		group = make(map[string]*Subscriber)
		h.subscribers[batchID] = group
	}
	group[s.ID] = s
	h.mu.Unlock()

	go s.pump()
	return s
}

// Unsubscribe removes a subscription and stops its delivery.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if group, ok := h.subscribers[s.BatchID]; ok {
		delete(group, s.ID)
		if len(group) == 0 {
			delete(h.subscribers, s.BatchID)
		}
	}
	h.mu.Unlock()
	s.close()
}

// Publish sends an event to every subscriber of the batch. Never blocks on
// slow consumers.
func (h *Hub) Publish(batchID string, eventType EventType, payload interface{}) {
	ev := newEvent(eventType, batchID, payload)

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers[batchID]))
	for _, s := range h.subscribers[batchID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(ev)
	}
}

// Broadcast sends an event to every subscriber regardless of batch.
func (h *Hub) Broadcast(eventType EventType, payload interface{}) {
	ev := newEvent(eventType, "", payload)

	h.mu.RLock()
	var targets []*Subscriber
	for _, group := range h.subscribers {
		for _, s := range group {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(ev)
	}
}

// SendTo delivers an event to a single subscriber, bypassing the batch
// fan-out. Used for on-demand snapshot replies and pongs.
func (h *Hub) SendTo(s *Subscriber, eventType EventType, batchID string, payload interface{}) {
	s.enqueue(newEvent(eventType, batchID, payload))
}

// PublishProgress adapts the hub to the progress tracker's sink contract.
func (h *Hub) PublishProgress(snapshot models.ProgressSnapshot) {
	h.Publish(snapshot.BatchID, EventProgressUpdate, snapshot)
}

// SubscriberCount reports how many subscribers a batch has.
func (h *Hub) SubscriberCount(batchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[batchID])
}

// Shutdown closes every subscription. Further publishes are dropped.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscriber
	for _, group := range h.subscribers {
		for _, s := range group {
			all = append(all, s)
		}
	}
	h.subscribers = make(map[string]map[string]*Subscriber)
	h.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

// Subscriber is one registered recipient. Events arrive on Events() in
// publish order; when the bounded queue overflows, the oldest events are
// dropped and a SubscriberLagged event reports the gap.
type Subscriber struct {
	ID      string
	BatchID string

	hub  *Hub
	out  chan Event
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	queue   []Event
	dropped int
	closed  bool

	limit     int
	closeOnce sync.Once
}

// Events is the delivery channel. It closes when the subscription ends.
func (s *Subscriber) Events() <-chan Event {
	return s.out
}

// Close ends the subscription.
func (s *Subscriber) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscriber) enqueue(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.limit {
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves events from the bounded queue to the delivery channel. It is
// the only sender on out, which keeps per-subscriber ordering.
func (s *Subscriber) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			if s.dropped > 0 {
				n := s.dropped
				s.dropped = 0
				s.mu.Unlock()
				if !s.deliver(newEvent(EventSubscriberLagged, s.BatchID, LaggedPayload{Dropped: n})) {
					return
				}
				continue
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if !s.deliver(ev) {
				return
			}
		}
	}
}

func (s *Subscriber) deliver(ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}
