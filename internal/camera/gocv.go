//go:build gocv

package camera

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// gocvSource captures through OpenCV.
type gocvSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	seq     uint64
}

// GoCVAvailable reports whether this build can capture through OpenCV.
const GoCVAvailable = true

// deviceIndex maps /dev/videoN to N; other values are passed through.
func deviceIndex(device string) any {
	if n, err := strconv.Atoi(strings.TrimPrefix(device, "/dev/video")); err == nil {
		return n
	}
	return device
}

// OpenGoCV opens the configured device or URL with OpenCV.
func OpenGoCV(ctx context.Context, cfg Config) (Source, error) {
	var target any = cfg.URL
	if cfg.Kind == KindLocal {
		target = deviceIndex(cfg.Device)
	}

	capture, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrOpen, target, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, target)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	return &gocvSource{capture: capture, mat: gocv.NewMat()}, nil
}

func (s *gocvSource) Read(ctx context.Context) (*Frame, error) {
	if ctx.Err() != nil {
		return nil, ErrEndOfStream
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, ErrEndOfStream
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, ErrEndOfStream
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.mat)
	if err != nil {
		return nil, ErrEndOfStream
	}
	defer buf.Close()
	data := append([]byte(nil), buf.GetBytes()...)

	s.seq++
	return &Frame{
		Image:     img,
		JPEG:      data,
		Width:     s.mat.Cols(),
		Height:    s.mat.Rows(),
		Seq:       s.seq,
		Timestamp: time.Now(),
	}, nil
}

func (s *gocvSource) Close() error {
	s.mat.Close()
	return s.capture.Close()
}
