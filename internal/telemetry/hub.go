package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RNCC-Cubesat/kubos/internal/config"
)

// Event types
const (
	EventReady     = "ready"
	EventHeartbeat = "heartbeat"
	EventCommand   = "command"
	EventTelemetry = "telemetry"
	EventFault     = "fault"
)

// DefaultHeartbeat is used when the config leaves the heartbeat unset.
const DefaultHeartbeat = 15 * time.Second

// clientQueueSize bounds the events queued for one subscriber.
const clientQueueSize = 64

// ErrHubStopped is returned by Subscribe after Stop.
var ErrHubStopped = errors.New("telemetry hub stopped")

// Event is a bus event with SSE formatting.
type Event struct {
	ID     int64                  `json:"id,omitempty"`
	Type   string                 `json:"type"`
	Module string                 `json:"module,omitempty"`
	Data   map[string]interface{} `json:"data"`

	payload []byte
}

// client is one SSE subscriber.
type client struct {
	id     string
	module string
	events chan Event
}

// Hub manages SSE event distribution with a replay buffer.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	buffer *EventBuffer
	// nextID is written under mu so IDs reach the buffer and every client in order.
	nextID    atomic.Int64
	heartbeat time.Duration
	logger    *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new hub.
func NewHub(cfg config.EventsConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Hub{
		clients:   make(map[string]*client),
		buffer:    NewEventBuffer(cfg.BufferSize),
		heartbeat: heartbeat,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Subscribe streams events to w until ctx ends or the hub stops. A
// Last-Event-ID header replays buffered events newer than that ID.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported by response writer")
	}

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	c := &client{
		id:     uuid.NewString(),
		module: strings.ToUpper(r.URL.Query().Get("module")),
		events: make(chan Event, clientQueueSize),
	}
	if err := h.register(c); err != nil {
		return err
	}
	defer h.unregister(c.id)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ready := Event{
		Type: EventReady,
		Data: map[string]interface{}{
			"module":      c.module,
			"lastEventId": h.nextID.Load(),
		},
	}
	if err := writeEvent(w, flusher, ready); err != nil {
		return err
	}

	// Events published during replay are also queued; lastSent skips them.
	lastSent := lastEventID
	if lastEventID > 0 {
		for _, event := range h.buffer.EventsAfter(lastEventID, c.module) {
			if err := writeEvent(w, flusher, event); err != nil {
				return err
			}
			lastSent = event.ID
		}
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case event := <-c.events:
			if event.ID <= lastSent {
				continue
			}
			if err := writeEvent(w, flusher, event); err != nil {
				return err
			}
			lastSent = event.ID
		case <-heartbeat.C:
			beat := Event{
				Type: EventHeartbeat,
				Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
			}
			if err := writeEvent(w, flusher, beat); err != nil {
				return err
			}
		}
	}
}

// Publish assigns the next event ID, buffers the event and fans it out.
// Subscribers whose queue is full miss the event. Events whose data cannot
// be encoded are logged and dropped before they take an ID.
func (h *Hub) Publish(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		h.logger.Error("dropping unencodable event", "type", event.Type, "module", event.Module, "error", err)
		return
	}
	event.payload = payload

	h.mu.Lock()
	defer h.mu.Unlock()

	event.ID = h.nextID.Add(1)
	h.buffer.Add(event)

	for _, c := range h.clients {
		if c.module != "" && c.module != event.Module {
			continue
		}
		select {
		case c.events <- event:
		default:
			h.logger.Debug("dropping event for slow subscriber", "client", c.id, "eventId", event.ID)
		}
	}
}

// PublishModule publishes an event for a module.
func (h *Hub) PublishModule(module, eventType string, data map[string]interface{}) {
	h.Publish(Event{Type: eventType, Module: module, Data: data})
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop disconnects every subscriber. Later subscriptions fail.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	h.clients[c.id] = c
	h.logger.Debug("event subscriber connected", "client", c.id, "module", c.module)
	return nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	h.logger.Debug("event subscriber disconnected", "client", id)
}

// writeEvent writes a single event in SSE format and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event Event) error {
	data := event.payload
	if data == nil {
		var err error
		if data, err = json.Marshal(event.Data); err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	if event.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	flusher.Flush()
	return nil
}
