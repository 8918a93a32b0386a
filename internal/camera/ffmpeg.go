package camera

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ffmpegArgs builds the ffmpeg command line that turns the input into a
// stream of concatenated JPEG images on stdout.
func ffmpegArgs(cfg Config) []string {
	input := cfg.Input()
	out := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"}

	switch {
	case strings.HasPrefix(input, "rtsp://"):
		args := []string{"-rtsp_transport", "tcp", "-i", input}
		if cfg.FPS > 0 {
			out = append([]string{"-r", fmt.Sprintf("%d", cfg.FPS)}, out...)
		}
		return append(args, out...)
	case isNetworkSource(input):
		args := []string{"-i", input}
		if cfg.FPS > 0 {
			out = append([]string{"-r", fmt.Sprintf("%d", cfg.FPS)}, out...)
		}
		return append(args, out...)
	default:
		args := []string{"-f", "v4l2"}
		if cfg.Width > 0 && cfg.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
		}
		if cfg.FPS > 0 {
			args = append(args, "-framerate", fmt.Sprintf("%d", cfg.FPS))
		}
		args = append(args, "-i", input)
		return append(args, out...)
	}
}

// ffmpegSource reads MJPEG frames from an ffmpeg subprocess.
type ffmpegSource struct {
	*StreamSource
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func startFFmpeg(ctx context.Context, cfg Config) (*ffmpegSource, error) {
	bin := cfg.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, bin, ffmpegArgs(cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// ffmpeg blocks if nobody drains stderr
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	return &ffmpegSource{
		StreamSource: NewStreamSource(stdout),
		cmd:          cmd,
		cancel:       cancel,
	}, nil
}

// Close stops ffmpeg and releases the pipe.
func (s *ffmpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.StreamSource.Close()
		s.cmd.Wait()
	})
	return nil
}
