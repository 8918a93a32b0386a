// Package camera reads color frames from a local capture device or a
// network stream.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"time"
)

var (
	// ErrOpen means the source could not be opened. It is fatal: callers
	// must not read from a source that failed to open.
	ErrOpen = errors.New("camera not accessible")
	// ErrEndOfStream means no more frames will arrive. It marks normal
	// termination, not a failure.
	ErrEndOfStream = errors.New("end of stream")
)

// Source kinds
const (
	KindLocal = "local"
	KindIP    = "ip"
)

// Frame is one captured color image.
type Frame struct {
	Image     image.Image
	JPEG      []byte // encoded frame as delivered by the source
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// Source yields successive frames.
type Source interface {
	// Read blocks until the next frame. It returns ErrEndOfStream once the
	// stream is over or a frame cannot be read.
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// Config selects and tunes the source.
type Config struct {
	Kind       string // KindLocal or KindIP
	Device     string // local device path, e.g. /dev/video0
	URL        string // http(s)/rtsp stream URL
	FPS        int
	Width      int
	Height     int
	FFmpegPath string // defaults to "ffmpeg"
}

// Input returns the device path or URL the config points at.
func (c Config) Input() string {
	if c.Kind == KindLocal {
		return c.Device
	}
	return c.URL
}

// isNetworkSource checks if input is an HTTP/RTSP URL
func isNetworkSource(input string) bool {
	return strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://") ||
		strings.HasPrefix(input, "rtsp://")
}

// deviceAccessible checks that a local device exists and can be opened for reading.
func deviceAccessible(device string) error {
	if _, err := os.Stat(device); err != nil {
		return err
	}
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return f.Close()
}

// Open starts capturing from the configured source and waits for the first
// frame. Any failure is reported as ErrOpen; there is no retry.
func Open(ctx context.Context, cfg Config) (Source, error) {
	input := cfg.Input()
	switch cfg.Kind {
	case KindLocal:
		if err := deviceAccessible(input); err != nil {
			return nil, fmt.Errorf("%w: device %s: %v", ErrOpen, input, err)
		}
	case KindIP:
		if !isNetworkSource(input) {
			return nil, fmt.Errorf("%w: unsupported stream URL %q", ErrOpen, input)
		}
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrOpen, cfg.Kind)
	}

	src, err := startFFmpeg(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, input, err)
	}
	if err := src.prime(ctx); err != nil {
		src.Close()
		return nil, fmt.Errorf("%w: %s: no frame received: %v", ErrOpen, input, err)
	}
	return src, nil
}
