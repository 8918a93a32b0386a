package camera

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"time"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameBytes bounds the buffer when the stream never yields a complete JPEG.
const maxFrameBytes = 16 << 20

// extractJPEGFrame removes the first complete JPEG image from buffer and
// returns it, or nil if the buffer does not hold one yet. Bytes before the
// start marker are discarded.
func extractJPEGFrame(buffer *[]byte) []byte {
	buf := *buffer
	start := bytes.Index(buf, jpegSOI)
	if start == -1 {
		// keep a trailing 0xFF in case the marker is split across reads
		if n := len(buf); n > 0 && buf[n-1] == 0xFF {
			*buffer = buf[n-1:]
		} else {
			*buffer = buf[:0]
		}
		return nil
	}
	end := bytes.Index(buf[start+2:], jpegEOI)
	if end == -1 {
		*buffer = buf[start:]
		return nil
	}
	end += start + 2 + len(jpegEOI)

	frame := make([]byte, end-start)
	copy(frame, buf[start:end])
	*buffer = buf[end:]
	return frame
}

// StreamSource decodes frames from a byte stream of concatenated JPEG
// images, the format ffmpeg's image2pipe and MJPEG bodies share.
type StreamSource struct {
	r       io.ReadCloser
	buf     []byte
	chunk   []byte
	seq     uint64
	pending *Frame
	now     func() time.Time
}

// NewStreamSource wraps r. The source owns r and closes it on Close.
func NewStreamSource(r io.ReadCloser) *StreamSource {
	return &StreamSource{
		r:     r,
		buf:   make([]byte, 0, 1<<20),
		chunk: make([]byte, 32<<10),
		now:   time.Now,
	}
}

// prime reads the first frame and holds it for the next Read.
func (s *StreamSource) prime(ctx context.Context) error {
	f, err := s.next(ctx)
	if err != nil {
		return err
	}
	s.pending = f
	return nil
}

// Read returns the next decoded frame.
func (s *StreamSource) Read(ctx context.Context) (*Frame, error) {
	if s.pending != nil {
		f := s.pending
		s.pending = nil
		return f, nil
	}
	return s.next(ctx)
}

func (s *StreamSource) next(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, ErrEndOfStream
		}
		if data := extractJPEGFrame(&s.buf); data != nil {
			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				return nil, ErrEndOfStream
			}
			s.seq++
			b := img.Bounds()
			return &Frame{
				Image:     img,
				JPEG:      data,
				Width:     b.Dx(),
				Height:    b.Dy(),
				Seq:       s.seq,
				Timestamp: s.now(),
			}, nil
		}
		if len(s.buf) > maxFrameBytes {
			return nil, ErrEndOfStream
		}

		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, ErrEndOfStream
		}
	}
}

// Close closes the underlying reader.
func (s *StreamSource) Close() error {
	return s.r.Close()
}
