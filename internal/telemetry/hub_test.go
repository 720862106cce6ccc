package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RNCC-Cubesat/kubos/internal/config"
)

type sseEvent struct {
	id    int64
	event string
	data  map[string]interface{}
}

func newHubServer(t *testing.T, cfg config.EventsConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, nil)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Subscribe(r.Context(), w, r)
	}))
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
	})
	return hub, ts
}

func subscribe(t *testing.T, ts *httptest.Server, query string, lastID int64) (*bufio.Reader, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+query, nil)
	require.NoError(t, err)
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream; charset=utf-8", resp.Header.Get("Content-Type"))

	return bufio.NewReader(resp.Body), func() {
		cancel()
		resp.Body.Close()
	}
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return ev
		case strings.HasPrefix(line, "id: "):
			ev.id, err = strconv.ParseInt(strings.TrimPrefix(line, "id: "), 10, 64)
			require.NoError(t, err)
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data))
		}
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, time.Second, 5*time.Millisecond)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	hub, ts := newHubServer(t, config.Default().Events)

	r, done := subscribe(t, ts, "/", 0)
	defer done()

	ready := readEvent(t, r)
	assert.Equal(t, EventReady, ready.event)
	waitForClients(t, hub, 1)

	hub.PublishModule("EPS", EventCommand, map[string]interface{}{"command": "SUP:LED ON"})

	ev := readEvent(t, r)
	assert.Equal(t, EventCommand, ev.event)
	assert.Equal(t, int64(1), ev.id)
	assert.Equal(t, "SUP:LED ON", ev.data["command"])
}

func TestSubscribeModuleFilter(t *testing.T) {
	hub, ts := newHubServer(t, config.Default().Events)

	r, done := subscribe(t, ts, "/?module=bm2", 0)
	defer done()
	readEvent(t, r)
	waitForClients(t, hub, 1)

	hub.PublishModule("EPS", EventTelemetry, map[string]interface{}{"n": 1})
	hub.PublishModule("BM2", EventTelemetry, map[string]interface{}{"n": 2})

	ev := readEvent(t, r)
	assert.Equal(t, int64(2), ev.id)
	assert.Equal(t, float64(2), ev.data["n"])
}

func TestSubscribeReplay(t *testing.T) {
	hub, ts := newHubServer(t, config.Default().Events)

	for i := 1; i <= 3; i++ {
		hub.PublishModule("EPS", EventCommand, map[string]interface{}{"n": i})
	}

	r, done := subscribe(t, ts, "/", 1)
	defer done()

	assert.Equal(t, EventReady, readEvent(t, r).event)
	assert.Equal(t, int64(2), readEvent(t, r).id)
	assert.Equal(t, int64(3), readEvent(t, r).id)

	waitForClients(t, hub, 1)
	hub.PublishModule("EPS", EventFault, map[string]interface{}{"code": "BUSY"})
	ev := readEvent(t, r)
	assert.Equal(t, int64(4), ev.id)
	assert.Equal(t, EventFault, ev.event)
}

func TestConcurrentPublishKeepsOrder(t *testing.T) {
	const publishers, perPublisher = 8, 6
	total := publishers * perPublisher

	hub, ts := newHubServer(t, config.EventsConfig{BufferSize: total, Heartbeat: time.Minute})

	r, done := subscribe(t, ts, "/", 0)
	defer done()
	readEvent(t, r)
	waitForClients(t, hub, 1)

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				hub.PublishModule("EPS", EventTelemetry, map[string]interface{}{"publisher": p, "n": i})
			}
		}(p)
	}
	wg.Wait()

	for want := int64(1); want <= int64(total); want++ {
		assert.Equal(t, want, readEvent(t, r).id)
	}

	buffered := hub.buffer.EventsAfter(0, "")
	require.Len(t, buffered, total)
	for i, ev := range buffered {
		assert.Equal(t, int64(i+1), ev.ID)
	}
}

func TestUnencodableEventDropped(t *testing.T) {
	hub, ts := newHubServer(t, config.Default().Events)

	r, done := subscribe(t, ts, "/", 0)
	defer done()
	readEvent(t, r)
	waitForClients(t, hub, 1)

	hub.PublishModule("EPS", EventTelemetry, map[string]interface{}{"values": []interface{}{math.NaN()}})
	hub.PublishModule("EPS", EventTelemetry, map[string]interface{}{"values": []interface{}{"NaN"}})

	ev := readEvent(t, r)
	assert.Equal(t, int64(1), ev.id)
	assert.Equal(t, []interface{}{"NaN"}, ev.data["values"])
	assert.Equal(t, 1, hub.buffer.Len())
}

func TestHeartbeat(t *testing.T) {
	_, ts := newHubServer(t, config.EventsConfig{BufferSize: 4, Heartbeat: 20 * time.Millisecond})

	r, done := subscribe(t, ts, "/", 0)
	defer done()
	readEvent(t, r)

	ev := readEvent(t, r)
	assert.Equal(t, EventHeartbeat, ev.event)
	assert.Zero(t, ev.id)
	assert.NotEmpty(t, ev.data["ts"])
}

func TestStop(t *testing.T) {
	hub, ts := newHubServer(t, config.Default().Events)

	r, done := subscribe(t, ts, "/", 0)
	defer done()
	readEvent(t, r)
	waitForClients(t, hub, 1)

	hub.Stop()
	waitForClients(t, hub, 0)

	err := hub.Subscribe(context.Background(), httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestEventBuffer(t *testing.T) {
	b := NewEventBuffer(2)
	b.Add(Event{ID: 1, Module: "EPS"})
	b.Add(Event{ID: 2, Module: "BM2"})
	b.Add(Event{ID: 3, Module: "EPS"})

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []Event{{ID: 2, Module: "BM2"}, {ID: 3, Module: "EPS"}}, b.EventsAfter(0, ""))
	assert.Equal(t, []Event{{ID: 3, Module: "EPS"}}, b.EventsAfter(0, "EPS"))
	assert.Empty(t, b.EventsAfter(3, ""))
}
