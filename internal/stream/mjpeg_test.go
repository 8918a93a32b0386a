package stream

import (
	"bufio"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_NoFrame(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	rec := httptest.NewRecorder()
	b.SnapshotHandler()(rec, httptest.NewRequest(http.MethodGet, "/video/snapshot", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshot_LatestFrame(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.Publish([]byte("one"))
	b.Publish([]byte("two"))

	rec := httptest.NewRecorder()
	b.SnapshotHandler()(rec, httptest.NewRequest(http.MethodGet, "/video/snapshot", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Frame-Seq"))
	assert.Equal(t, "two", rec.Body.String())
}

func TestPublish_SlowClientDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer*3; i++ {
			b.Publish([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
	assert.Len(t, ch, clientBuffer)
}

func TestServeHTTP_StreamsParts(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.Publish([]byte("first"))
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)

	// a part ends only once the next boundary arrives
	require.Eventually(t, func() bool { return b.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	b.Publish([]byte("second"))
	b.Publish([]byte("third"))

	mr := multipart.NewReader(bufio.NewReader(resp.Body), params["boundary"])
	for _, want := range []string{"first", "second"} {
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.Equal(t, want, string(body))
	}
}
