package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condenserhq/condenser/pkg/models"
)

type fakeProgress struct {
	snapshots map[string]models.ProgressSnapshot
}

func (f *fakeProgress) Progress(batchID string) (models.ProgressSnapshot, bool) {
	snap, ok := f.snapshots[batchID]
	return snap, ok
}

type wsClient struct {
	conn *websocket.Conn
	t    *testing.T
}

func dialManager(t *testing.T, m *ConnectionManager) *wsClient {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		m.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return &wsClient{conn: conn, t: t}
}

func (c *wsClient) send(msg ClientMessage) {
	c.t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, data))
}

func (c *wsClient) read() Event {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.conn.Read(ctx)
	require.NoError(c.t, err)
	var ev Event
	require.NoError(c.t, json.Unmarshal(data, &ev))
	return ev
}

// readType skips events until one of the wanted type arrives.
func (c *wsClient) readType(want EventType) Event {
	c.t.Helper()
	for i := 0; i < 20; i++ {
		ev := c.read()
		if ev.Type == want {
			return ev
		}
	}
	c.t.Fatalf("never received event of type %s", want)
	return Event{}
}

func newManager(progress ProgressSource) (*Hub, *ConnectionManager) {
	hub := NewHub(16, nil)
	m := NewConnectionManager(hub, progress, 2*time.Second, 0, nil)
	return hub, m
}

func TestManager_ConnectedGreeting(t *testing.T) {
	hub, m := newManager(nil)
	defer hub.Shutdown()

	client := dialManager(t, m)
	ev := client.read()
	assert.Equal(t, EventConnected, ev.Type)

	payload := ev.Payload.(map[string]interface{})
	assert.NotEmpty(t, payload["connectionId"])
}

func TestManager_JoinReceiveLeave(t *testing.T) {
	hub, m := newManager(nil)
	defer hub.Shutdown()

	client := dialManager(t, m)
	client.readType(EventConnected)

	client.send(ClientMessage{Type: MsgJoinBatchGroup, BatchID: "b1"})
	client.readType(EventJoinedBatchGroup)

	require.Eventually(t, func() bool { return hub.SubscriberCount("b1") == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish("b1", EventStageChanged, StageChangedPayload{Stage: models.StageMerging})
	ev := client.readType(EventStageChanged)
	assert.Equal(t, "b1", ev.BatchID)

	client.send(ClientMessage{Type: MsgLeaveBatchGroup, BatchID: "b1"})
	client.readType(EventLeftBatchGroup)

	require.Eventually(t, func() bool { return hub.SubscriberCount("b1") == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestManager_JoinIsIdempotent(t *testing.T) {
	hub, m := newManager(nil)
	defer hub.Shutdown()

	client := dialManager(t, m)
	client.readType(EventConnected)

	client.send(ClientMessage{Type: MsgJoinBatchGroup, BatchID: "b1"})
	client.readType(EventJoinedBatchGroup)
	client.send(ClientMessage{Type: MsgJoinBatchGroup, BatchID: "b1"})
	client.readType(EventJoinedBatchGroup)

	require.Eventually(t, func() bool { return hub.SubscriberCount("b1") == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish("b1", EventStageChanged, StageChangedPayload{Stage: models.StageMerging})
	client.readType(EventStageChanged)
}

func TestManager_RequestProgressUpdate(t *testing.T) {
	progress := &fakeProgress{snapshots: map[string]models.ProgressSnapshot{
		"b1": {BatchID: "b1", Total: 4, Completed: 2, Stage: models.StageBatchProcessing, OverallPct: 50},
	}}
	hub, m := newManager(progress)
	defer hub.Shutdown()

	client := dialManager(t, m)
	client.readType(EventConnected)

	client.send(ClientMessage{Type: MsgRequestProgressUpdate, BatchID: "b1"})
	ev := client.readType(EventProgressUpdate)
	snap := ev.Payload.(map[string]interface{})
	assert.Equal(t, float64(50), snap["overall_pct"])

	client.send(ClientMessage{Type: MsgRequestProgressUpdate, BatchID: "missing"})
	ev = client.readType(EventSystemStatusUpdate)
	payload := ev.Payload.(map[string]interface{})
	assert.Contains(t, payload["error"], "unknown batch")
}

func TestManager_PingPong(t *testing.T) {
	hub, m := newManager(nil)
	defer hub.Shutdown()

	client := dialManager(t, m)
	client.readType(EventConnected)

	client.send(ClientMessage{Type: MsgPing})
	client.readType(EventPong)
}

func TestManager_DisconnectCleansUpGroups(t *testing.T) {
	hub, m := newManager(nil)
	defer hub.Shutdown()

	client := dialManager(t, m)
	client.readType(EventConnected)
	client.send(ClientMessage{Type: MsgJoinBatchGroup, BatchID: "b1"})
	client.readType(EventJoinedBatchGroup)

	require.Eventually(t, func() bool { return m.ActiveConnections() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.conn.Close(websocket.StatusNormalClosure, "done"))

	require.Eventually(t, func() bool {
		return m.ActiveConnections() == 0 && hub.SubscriberCount("b1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_HeartbeatDropsSilentConnection(t *testing.T) {
	hub := NewHub(16, nil)
	defer hub.Shutdown()
	m := NewConnectionManager(hub, nil, time.Second, 20*time.Millisecond, nil)

	client := dialManager(t, m)
	client.readType(EventConnected)

	require.Eventually(t, func() bool { return m.ActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)
}
