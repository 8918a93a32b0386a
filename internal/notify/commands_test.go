package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/database"
	"vigil/internal/ws"
)

type botAPI struct {
	mu      sync.Mutex
	updates []update
	offsets []string
	texts   []string
	photos  int
}

func (b *botAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.URL.Path {
		case "/botTOKEN/getUpdates":
			b.offsets = append(b.offsets, r.URL.Query().Get("offset"))
			json.NewEncoder(w).Encode(updatesResponse{OK: true, Result: b.updates})
			b.updates = nil
			return
		case "/botTOKEN/sendMessage":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			text, _ := body["text"].(string)
			b.texts = append(b.texts, text)
		case "/botTOKEN/sendPhoto":
			b.photos++
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *botAPI) sent() ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...), b.photos
}

func msg(id, chatID int64, text string) update {
	return update{UpdateID: id, Message: &updateMessage{MessageID: id, Chat: &chat{ID: chatID}, Text: text}}
}

type fixedStatus struct{ msg *ws.StatusMessage }

func (f fixedStatus) Latest() *ws.StatusMessage { return f.msg }

type fixedFrame []byte

func (f fixedFrame) Latest() ([]byte, uint64) { return f, 1 }

type fixedEvents []*database.Event

func (f fixedEvents) ListEvents(string, time.Time, int) ([]*database.Event, error) { return f, nil }

func newCommands(t *testing.T, api *botAPI, status *ws.StatusMessage, frame []byte, events EventSource) *Commands {
	t.Helper()
	srv := api.server(t)
	tg := NewTelegram(Config{Enabled: true, BotToken: "TOKEN", ChatID: "42", APIBase: srv.URL})
	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	tg.now = func() time.Time { return start.Add(90 * time.Minute) }
	c := NewCommands(tg, fixedStatus{status}, fixedFrame(frame), events, "s1", zerolog.Nop())
	c.startTime = start
	return c
}

func TestCommands_StatusFromAuthorizedChatOnly(t *testing.T) {
	api := &botAPI{updates: []update{
		msg(7, 42, "/status"),
		msg(8, 99, "/status"),
	}}
	st := ws.NewStatusMessage("activity", 120, time.Now())
	st.Activity = "sitting"
	st.Confidence = 0.88
	st.SleepState = "AWAKE"
	st.SetEAR(0.31)
	c := newCommands(t, api, st, nil, nil)

	require.NoError(t, c.poll(context.Background()))
	require.NoError(t, c.poll(context.Background()))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.texts, 1)
	assert.Contains(t, api.texts[0], "Activity: <b>sitting</b> (0.88)")
	assert.Contains(t, api.texts[0], "Sleep: <b>AWAKE</b>")
	assert.Contains(t, api.texts[0], "EAR: 0.310")
	assert.Contains(t, api.texts[0], "Uptime: 1h 30m")
	assert.Equal(t, []string{"1", "9"}, api.offsets)
}

func TestCommands_Snapshot(t *testing.T) {
	api := &botAPI{updates: []update{msg(1, 42, "/snapshot@vigil_bot")}}
	c := newCommands(t, api, nil, []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil)

	require.NoError(t, c.poll(context.Background()))
	texts, photos := api.sent()
	assert.Equal(t, 1, photos)
	assert.Empty(t, texts)
}

func TestCommands_SnapshotWithoutFrame(t *testing.T) {
	api := &botAPI{updates: []update{msg(1, 42, "/snapshot")}}
	c := newCommands(t, api, nil, nil, nil)

	require.NoError(t, c.poll(context.Background()))
	texts, photos := api.sent()
	assert.Equal(t, 0, photos)
	assert.Equal(t, []string{"No frame available yet."}, texts)
}

func TestCommands_Events(t *testing.T) {
	ts := time.Date(2026, 3, 1, 22, 5, 0, 0, time.Local)
	events := fixedEvents{
		{Timestamp: ts, Kind: database.KindActivity, Label: "sitting", Detail: "standing"},
		{Timestamp: ts.Add(time.Minute), Kind: database.KindSleep, Label: "WATCHING", Detail: "AWAKE"},
		{Timestamp: ts.Add(2 * time.Minute), Kind: database.KindSleep, Label: "SLEEPING", Detail: "WATCHING"},
	}
	api := &botAPI{updates: []update{msg(1, 42, "/events 2"), msg(2, 42, "hello"), msg(3, 42, "/dance")}}
	c := newCommands(t, api, nil, nil, events)

	require.NoError(t, c.poll(context.Background()))
	texts, _ := api.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Last 2 events")
	assert.NotContains(t, texts[0], "standing")
	assert.Contains(t, texts[0], "22:07:00  WATCHING → <b>SLEEPING</b>")
	assert.Contains(t, texts[1], "Unknown command")
}

func TestCommands_EventsDisabled(t *testing.T) {
	assert.Equal(t, "Event recording is disabled.", (&Commands{}).eventsText(nil))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "2h 3m", formatDuration(2*time.Hour+3*time.Minute))
	assert.Equal(t, "1d 1h 0m", formatDuration(25*time.Hour))
}
