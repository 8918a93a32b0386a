// Package stream serves rendered frames to browsers as MJPEG.
package stream

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// clientBuffer is how many frames a slow client may lag behind before frames are dropped.
const clientBuffer = 5

// Broadcaster fans the latest rendered frame out to HTTP clients.
type Broadcaster struct {
	log zerolog.Logger

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameMu sync.RWMutex
	current []byte
	seq     uint64
}

// NewBroadcaster creates a new broadcaster with no clients
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		log:     log,
		clients: make(map[chan []byte]struct{}),
	}
}

// Publish stores frame as the latest and offers it to every client without blocking.
// The caller must not modify frame afterwards.
func (b *Broadcaster) Publish(frame []byte) {
	b.frameMu.Lock()
	b.current = frame
	b.seq++
	b.frameMu.Unlock()

	b.clientsMu.RLock()
	for ch := range b.clients {
		select {
		case ch <- frame:
		default:
			// slow client, skip frame
		}
	}
	b.clientsMu.RUnlock()
}

// Latest returns the most recent frame and its sequence number.
func (b *Broadcaster) Latest() ([]byte, uint64) {
	b.frameMu.RLock()
	defer b.frameMu.RUnlock()
	return b.current, b.seq
}

// Clients returns the number of connected stream clients.
func (b *Broadcaster) Clients() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	b.clientsMu.Lock()
	b.clients[ch] = struct{}{}
	b.clientsMu.Unlock()
	return ch
}

func (b *Broadcaster) unsubscribe(ch chan []byte) {
	b.clientsMu.Lock()
	delete(b.clients, ch)
	b.clientsMu.Unlock()
}

// ServeHTTP streams frames as multipart/x-mixed-replace until the client goes away.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := b.subscribe()
	defer b.unsubscribe(ch)

	b.log.Debug().Str("remote", r.RemoteAddr).Msg("stream client connected")

	if frame, _ := b.Latest(); frame != nil {
		if err := writePart(w, frame); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			b.log.Debug().Str("remote", r.RemoteAddr).Msg("stream client disconnected")
			return
		case frame := <-ch:
			if err := writePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// SnapshotHandler serves the latest frame as a single JPEG.
func (b *Broadcaster) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame, seq := b.Latest()
		if frame == nil {
			http.Error(w, "No frame available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame)))
		w.Header().Set("X-Frame-Seq", fmt.Sprintf("%d", seq))
		w.Write(frame)
	}
}
