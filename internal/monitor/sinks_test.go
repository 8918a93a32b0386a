package monitor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/database"
	"vigil/internal/sleep"
	"vigil/internal/stream"
	"vigil/internal/ws"
)

type memStore struct {
	events []*database.Event
	err    error
}

func (s *memStore) SaveEvent(e *database.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

type captureNotifier struct {
	keys  []string
	texts []string
	jpegs [][]byte
}

func (c *captureNotifier) Notify(_ context.Context, key, text string, jpeg []byte) error {
	c.keys = append(c.keys, key)
	c.texts = append(c.texts, text)
	c.jpegs = append(c.jpegs, jpeg)
	return nil
}

func sampleResult() *FrameResult {
	ts := time.Date(2024, 6, 1, 22, 15, 0, 0, time.UTC)
	return &FrameResult{
		Seq:            42,
		Timestamp:      ts,
		Mode:           "activity",
		PersonDetected: true,
		FaceDetected:   true,
		Sleep:          sleep.Status{State: sleep.Sleeping, Confidence: 1, ClosedFor: 10 * time.Second, EAR: 0.05},
		Label:          "sleeping",
		Confidence:     1,
		Rendered:       []byte{0xFF, 0xD8, 0xFF, 0xD9},
		Events: []Event{
			{Kind: KindActivity, From: "walking", To: "standing", Confidence: 0.85, Timestamp: ts},
			{Kind: KindSleep, From: "WATCHING", To: "SLEEPING", Confidence: 1, Timestamp: ts},
		},
	}
}

func TestSinks_FanOutInOrder(t *testing.T) {
	var order []string
	s := Sinks{
		SinkFunc(func(context.Context, *FrameResult) { order = append(order, "a") }),
		nil,
		SinkFunc(func(context.Context, *FrameResult) { order = append(order, "b") }),
	}
	s.OnFrame(context.Background(), sampleResult())
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestStreamSink(t *testing.T) {
	b := stream.NewBroadcaster(zerolog.Nop())
	StreamSink(b).OnFrame(context.Background(), sampleResult())

	frame, seq := b.Latest()
	assert.True(t, bytes.Equal(sampleResult().Rendered, frame))
	assert.Equal(t, uint64(1), seq)
}

func TestStatusSink(t *testing.T) {
	hub := ws.NewHub(zerolog.Nop())
	StatusSink(hub, "sess-1").OnFrame(context.Background(), sampleResult())

	latest := hub.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, "sess-1", latest.SessionID)
	assert.Equal(t, "sleeping", latest.Activity)
	assert.Equal(t, "SLEEPING", latest.SleepState)
	assert.Equal(t, uint64(42), latest.FrameSeq)
	require.NotNil(t, latest.EAR)
	assert.InDelta(t, 0.05, *latest.EAR, 1e-9)
}

func TestRecorder(t *testing.T) {
	store := &memStore{}
	NewRecorder(store, "sess-1", zerolog.Nop()).OnFrame(context.Background(), sampleResult())

	require.Len(t, store.events, 2)
	assert.Equal(t, database.KindActivity, store.events[0].Kind)
	assert.Equal(t, "standing", store.events[0].Label)
	assert.Equal(t, "walking", store.events[0].Detail)
	assert.Equal(t, database.KindSleep, store.events[1].Kind)
	assert.Equal(t, "SLEEPING", store.events[1].Label)
	assert.Equal(t, "sess-1", store.events[1].SessionID)
}

func TestRecorder_StoreErrorIsLogged(t *testing.T) {
	var logs bytes.Buffer
	store := &memStore{err: errors.New("disk full")}
	NewRecorder(store, "s", zerolog.New(&logs)).OnFrame(context.Background(), sampleResult())
	assert.Contains(t, logs.String(), "disk full")
}

func TestAlertSink_OnlyOnSleepOnset(t *testing.T) {
	n := &captureNotifier{}
	sink := AlertSink(n, zerolog.Nop())

	res := sampleResult()
	sink.OnFrame(context.Background(), res)
	require.Len(t, n.keys, 1)
	assert.Equal(t, "sleep", n.keys[0])
	assert.True(t, strings.Contains(n.texts[0], "10s"))
	assert.Equal(t, res.Rendered, n.jpegs[0])

	res.Events = []Event{{Kind: KindSleep, From: "SLEEPING", To: "AWAKE"}}
	sink.OnFrame(context.Background(), res)
	assert.Len(t, n.keys, 1)
}
