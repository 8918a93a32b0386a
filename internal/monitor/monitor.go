// Package monitor runs the per-frame pipeline: read a frame, detect,
// classify, render, and hand the result to the sinks. It is strictly
// synchronous; one frame finishes before the next is read.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vigil/internal/activity"
	"vigil/internal/camera"
	"vigil/internal/config"
	"vigil/internal/detection"
	"vigil/internal/face"
	"vigil/internal/metrics"
	"vigil/internal/pose"
	"vigil/internal/render"
	"vigil/internal/sleep"
)

// Event kinds
const (
	KindActivity = "activity"
	KindSleep    = "sleep"
)

// Event is a smoothed activity label change or a sleep state transition.
type Event struct {
	Kind       string
	From       string
	To         string
	Confidence float64
	Timestamp  time.Time
}

// FrameResult is everything the pipeline produced for one frame.
type FrameResult struct {
	Seq       uint64
	Timestamp time.Time
	Mode      string

	PersonDetected bool
	FaceDetected   bool
	Activity       activity.Result // zero value in sleep mode
	Sleep          sleep.Status

	// Label and Confidence are what the overlay shows.
	Label      string
	Confidence float64

	Rendered []byte // overlay frame as JPEG
	Events   []Event
}

// Options wires a Monitor.
type Options struct {
	Mode     string
	Source   camera.Source
	Pose     detection.PoseEstimator // activity mode only
	Face     detection.LandmarkEstimator
	Activity *activity.Classifier // activity mode only
	Sleep    *sleep.Monitor
	Renderer *render.Renderer
	Sinks    []Sink
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Clock    sleep.Clock
	// Stop is polled after every frame; closing it ends Run.
	Stop <-chan struct{}
}

// Monitor owns the frame loop state. It is not safe for concurrent use.
type Monitor struct {
	mode     string
	src      camera.Source
	pose     detection.PoseEstimator
	face     detection.LandmarkEstimator
	activity *activity.Classifier
	sleep    *sleep.Monitor
	renderer *render.Renderer
	sinks    Sinks
	log      zerolog.Logger
	metrics  *metrics.Metrics
	clock    sleep.Clock
	stop     <-chan struct{}

	lastLabel activity.Label
	pending   []Event
	frames    uint64
}

// New validates opts and builds a monitor.
func New(opts Options) (*Monitor, error) {
	var errs []error
	switch opts.Mode {
	case config.ModeActivity:
		if opts.Pose == nil {
			errs = append(errs, errors.New("pose estimator is required in activity mode"))
		}
		if opts.Activity == nil {
			errs = append(errs, errors.New("activity classifier is required in activity mode"))
		}
	case config.ModeSleep:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", opts.Mode))
	}
	if opts.Source == nil {
		errs = append(errs, errors.New("camera source is required"))
	}
	if opts.Face == nil {
		errs = append(errs, errors.New("landmark estimator is required"))
	}
	if opts.Sleep == nil {
		errs = append(errs, errors.New("sleep monitor is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	m := &Monitor{
		mode:     opts.Mode,
		src:      opts.Source,
		pose:     opts.Pose,
		face:     opts.Face,
		activity: opts.Activity,
		sleep:    opts.Sleep,
		renderer: opts.Renderer,
		sinks:    opts.Sinks,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		stop:     opts.Stop,
	}
	if m.renderer == nil {
		m.renderer = render.New()
	}
	if m.clock == nil {
		m.clock = sleep.SystemClock{}
	}

	m.sleep.OnTransition(func(from, to sleep.State, st sleep.Status) {
		m.pending = append(m.pending, Event{
			Kind:       KindSleep,
			From:       from.String(),
			To:         to.String(),
			Confidence: st.Confidence,
			Timestamp:  m.clock.Now(),
		})
	})
	return m, nil
}

// Frames returns how many frames have been processed.
func (m *Monitor) Frames() uint64 {
	return m.frames
}

// Run processes frames until the stream ends, ctx is done or Stop is closed.
// End of stream is normal termination and returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().Str("mode", m.mode).Msg("monitor started")
	defer func() {
		m.log.Info().Uint64("frames", m.frames).Msg("monitor stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := m.src.Read(ctx)
		if errors.Is(err, camera.ErrEndOfStream) {
			m.log.Info().Msg("end of stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}

		res, err := m.Step(ctx, frame)
		if err != nil {
			return err
		}
		m.sinks.OnFrame(ctx, res)

		if m.stopRequested() {
			m.log.Info().Msg("stop requested")
			return nil
		}
	}
}

func (m *Monitor) stopRequested() bool {
	if m.stop == nil {
		return false
	}
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

// Step runs one frame through the pipeline without touching the sinks.
func (m *Monitor) Step(ctx context.Context, frame *camera.Frame) (*FrameResult, error) {
	start := time.Now()

	data, err := m.frameJPEG(frame)
	if err != nil {
		return nil, err
	}

	res := &FrameResult{
		Seq:       frame.Seq,
		Timestamp: m.clock.Now(),
		Mode:      m.mode,
	}

	var overlay render.Overlay
	if m.mode == config.ModeActivity {
		m.stepActivity(ctx, frame, data, res)
		overlay = render.ActivityOverlay(res.Label, res.Confidence)
	} else {
		m.stepSleep(ctx, frame, data, res)
		overlay = render.SleepOverlay(res.Sleep.State == sleep.Sleeping)
	}

	res.Rendered, err = m.renderer.Encode(m.renderer.Draw(frame.Image, overlay))
	if err != nil {
		return nil, err
	}

	res.Events = m.pending
	m.pending = nil
	for _, ev := range res.Events {
		m.log.Info().Str("kind", ev.Kind).Str("from", ev.From).Str("to", ev.To).
			Float64("confidence", ev.Confidence).Msg("state changed")
		m.metrics.Transition(ctx, ev.Kind, ev.To)
	}

	m.frames++
	m.metrics.FrameProcessed(ctx, m.mode, time.Since(start))
	m.log.Debug().Uint64("seq", res.Seq).Str("label", res.Label).
		Float64("confidence", res.Confidence).Str("sleep", res.Sleep.State.String()).
		Bool("person", res.PersonDetected).Bool("face", res.FaceDetected).Msg("frame")
	return res, nil
}

// frameJPEG returns the encoded frame the sidecars consume.
func (m *Monitor) frameJPEG(frame *camera.Frame) ([]byte, error) {
	if len(frame.JPEG) > 0 {
		return frame.JPEG, nil
	}
	return m.renderer.Encode(frame.Image)
}

func (m *Monitor) stepActivity(ctx context.Context, frame *camera.Frame, data []byte, res *FrameResult) {
	kp, err := m.pose.DetectPose(ctx, data)
	if err != nil {
		m.log.Warn().Err(err).Uint64("seq", frame.Seq).Msg("pose inference failed")
		m.metrics.InferenceError(ctx, "pose")
		kp = nil
	}

	if kp == nil {
		m.metrics.NoPerson(ctx)
		res.Activity = m.activity.ObserveMissing()
		res.Sleep = m.sleep.Status()
		res.Label = string(res.Activity.Label)
		res.Confidence = res.Activity.Confidence
		return
	}

	res.PersonDetected = true
	res.Activity = m.activity.Observe(pose.Normalize(*kp, frame.Width, frame.Height))
	if res.Activity.Label != m.lastLabel {
		m.pending = append(m.pending, Event{
			Kind:       KindActivity,
			From:       string(m.lastLabel),
			To:         string(res.Activity.Label),
			Confidence: res.Activity.Confidence,
			Timestamp:  res.Timestamp,
		})
		m.lastLabel = res.Activity.Label
	}

	res.Sleep = m.observeEyes(ctx, frame, data, res)

	res.Label = string(res.Activity.Label)
	res.Confidence = res.Activity.Confidence
	if res.Sleep.State == sleep.Sleeping {
		res.Label = string(activity.Sleeping)
		res.Confidence = res.Sleep.Confidence
	}
}

func (m *Monitor) stepSleep(ctx context.Context, frame *camera.Frame, data []byte, res *FrameResult) {
	res.Sleep = m.observeEyes(ctx, frame, data, res)
	if res.Sleep.State == sleep.Sleeping {
		res.Label = sleep.Sleeping.String()
	} else {
		res.Label = sleep.Awake.String()
	}
	res.Confidence = res.Sleep.Confidence
}

// observeEyes feeds the sleep monitor from the frame's face, if any.
func (m *Monitor) observeEyes(ctx context.Context, frame *camera.Frame, data []byte, res *FrameResult) sleep.Status {
	lm, err := m.face.DetectFace(ctx, data)
	if err != nil {
		m.log.Warn().Err(err).Uint64("seq", frame.Seq).Msg("face inference failed")
		m.metrics.InferenceError(ctx, "face")
		lm = nil
	}
	if lm == nil {
		m.metrics.NoFace(ctx)
		return m.sleep.ObserveMissing()
	}

	ear, err := face.EyeAspectRatio(lm, frame.Width, frame.Height)
	if err != nil {
		m.log.Debug().Err(err).Uint64("seq", frame.Seq).Msg("unusable landmark set")
		m.metrics.NoFace(ctx)
		return m.sleep.ObserveMissing()
	}

	res.FaceDetected = true
	return m.sleep.Observe(ear)
}
