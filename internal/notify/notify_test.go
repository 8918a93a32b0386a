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
)

type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	fields map[string]string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, r.URL.Path)
		f.fields = map[string]string{}
		switch r.URL.Path {
		case "/botTOKEN/sendPhoto":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			f.fields["caption"] = r.FormValue("caption")
			f.fields["chat_id"] = r.FormValue("chat_id")
		case "/botTOKEN/sendMessage":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			f.fields["text"], _ = body["text"].(string)
		default:
			json.NewEncoder(w).Encode(apiResponse{OK: false, ErrorCode: 404, Description: "Not Found"})
			return
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTelegram_Disabled(t *testing.T) {
	n := NewTelegram(Config{})
	assert.NoError(t, n.Notify(context.Background(), "sleep", "hi", nil))
}

func TestTelegram_PhotoAndCooldown(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server(t)

	n := NewTelegram(Config{Enabled: true, BotToken: "TOKEN", ChatID: "42", CooldownSeconds: 60, APIBase: srv.URL})
	now := time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	require.NoError(t, n.Notify(context.Background(), "sleep", "asleep", []byte{0xFF, 0xD8, 0xFF, 0xD9}))
	assert.Equal(t, []string{"/botTOKEN/sendPhoto"}, api.calls)
	assert.Equal(t, "asleep", api.fields["caption"])
	assert.Equal(t, "42", api.fields["chat_id"])

	assert.ErrorIs(t, n.Notify(context.Background(), "sleep", "again", nil), ErrCooldown)

	// other keys are independent
	require.NoError(t, n.Notify(context.Background(), "other", "text only", nil))
	assert.Equal(t, "text only", api.fields["text"])

	now = now.Add(time.Minute)
	assert.NoError(t, n.Notify(context.Background(), "sleep", "again", nil))
	assert.Len(t, api.calls, 3)
}

func TestTelegram_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{OK: false, ErrorCode: 401, Description: "Unauthorized"})
	}))
	defer srv.Close()

	n := NewTelegram(Config{Enabled: true, BotToken: "bad", ChatID: "1", APIBase: srv.URL})
	err := n.Notify(context.Background(), "sleep", "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")

	// failures do not start the cooldown
	assert.NotErrorIs(t, n.Notify(context.Background(), "sleep", "x", nil), ErrCooldown)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(Config{}))
	assert.Error(t, ValidateConfig(Config{Enabled: true, ChatID: "1"}))
	assert.Error(t, ValidateConfig(Config{Enabled: true, BotToken: "t"}))
	assert.Error(t, ValidateConfig(Config{CooldownSeconds: -1}))
}

type recordingNotifier struct {
	got chan string
}

func (r *recordingNotifier) Notify(_ context.Context, key, text string, _ []byte) error {
	r.got <- key + ":" + text
	return nil
}

func TestAsync_DeliversInBackground(t *testing.T) {
	rec := &recordingNotifier{got: make(chan string, 1)}
	a := NewAsync(rec, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	require.NoError(t, a.Notify(context.Background(), "sleep", "zzz", nil))
	select {
	case got := <-rec.got:
		assert.Equal(t, "sleep:zzz", got)
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}

	cancel()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestAsync_DropsWhenFull(t *testing.T) {
	a := NewAsync(&recordingNotifier{got: make(chan string, 10)}, zerolog.Nop())
	for i := 0; i < cap(a.queue)+3; i++ {
		require.NoError(t, a.Notify(context.Background(), "k", "t", nil))
	}
	assert.Len(t, a.queue, cap(a.queue))
}
