package ws

import (
	"encoding/json"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_BroadcastStatus(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := NewStatusMessage("activity", 7, ts)
	msg.Activity = "walking"
	msg.Confidence = 0.9
	msg.SleepState = "AWAKE"
	msg.SetEAR(0.31)
	hub.BroadcastStatus(msg)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got StatusMessage
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "status", got.Type)
	assert.Equal(t, "walking", got.Activity)
	assert.Equal(t, uint64(7), got.FrameSeq)
	require.NotNil(t, got.EAR)
	assert.InDelta(t, 0.31, *got.EAR, 1e-9)
	assert.True(t, ts.Equal(got.Timestamp))

	assert.Same(t, msg, hub.Latest())
}

func TestHub_BroadcastEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub)

	hub.BroadcastEvent(NewEventMessage("sleep", "WATCHING", "SLEEPING", 1, time.Now()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "event", got["type"])
	assert.Equal(t, "SLEEPING", got["to"])
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatusMessage_InfiniteEARIsOmitted(t *testing.T) {
	msg := NewStatusMessage("sleep", 1, time.Now())
	msg.SetEAR(math.Inf(1))
	assert.Nil(t, msg.EAR)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"ear"`)
}

func TestHub_NoClientsStillRecordsLatest(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	assert.Nil(t, hub.Latest())

	msg := NewStatusMessage("sleep", 1, time.Now())
	hub.BroadcastStatus(msg)
	assert.Same(t, msg, hub.Latest())
}
