// Package activity turns successive keypoint sets into a smoothed activity
// label using leg motion and knee angle heuristics.
package activity

import (
	"vigil/internal/config"
	"vigil/internal/pose"
	"vigil/internal/ringbuf"
)

// Label is a reported activity.
type Label string

const (
	Running  Label = "running"
	Walking  Label = "walking"
	Sitting  Label = "sitting"
	Standing Label = "standing"
	Sleeping Label = "sleeping"
	NoPerson Label = "No person"
)

// Confidence reported with each raw label.
const (
	RunningConfidence  = 0.95
	WalkingConfidence  = 0.90
	SittingConfidence  = 0.88
	StandingConfidence = 0.85
)

// Result is the classifier output for one frame.
type Result struct {
	Label      Label   // smoothed label (majority of recent raw labels)
	Confidence float64 // confidence of this frame's raw label
	Raw        Label
	AvgMotion  float64
	KneeAngle  float64 // radians
	Detected   bool
}

// Snapshot describes the classifier buffers.
type Snapshot struct {
	MotionLen   int
	ActivityLen int
	HasPrevious bool
}

// Classifier holds the per-stream state. It is not safe for concurrent use;
// the frame loop owns it.
type Classifier struct {
	th       config.Thresholds
	prev     *pose.KeypointSet
	motion   *ringbuf.Ring[float64]
	activity *ringbuf.Ring[Label]
}

// New creates a classifier with empty buffers.
func New(th config.Thresholds) *Classifier {
	return &Classifier{
		th:       th,
		motion:   ringbuf.New[float64](th.MotionAvgFrames),
		activity: ringbuf.New[Label](th.VoteFrames),
	}
}

// Classify applies the threshold rules in priority order.
func Classify(th config.Thresholds, avgMotion, kneeAngle float64) (Label, float64) {
	switch {
	case avgMotion > th.RunThreshold:
		return Running, RunningConfidence
	case avgMotion > th.WalkThreshold:
		return Walking, WalkingConfidence
	case kneeAngle < th.SitKneeAngle:
		return Sitting, SittingConfidence
	default:
		return Standing, StandingConfidence
	}
}

// Observe consumes a keypoint set already normalized to [0,1].
func (c *Classifier) Observe(kp pose.KeypointSet) Result {
	motion := pose.LegMotion(kp, c.prev)
	prev := kp
	c.prev = &prev

	c.motion.Push(motion)
	return c.record(ringbuf.Mean(c.motion), pose.KneeAngle(kp))
}

func (c *Classifier) record(avgMotion, kneeAngle float64) Result {
	raw, conf := Classify(c.th, avgMotion, kneeAngle)
	c.activity.Push(raw)
	smoothed, _ := ringbuf.Majority(c.activity)

	return Result{
		Label:      smoothed,
		Confidence: conf,
		Raw:        raw,
		AvgMotion:  avgMotion,
		KneeAngle:  kneeAngle,
		Detected:   true,
	}
}

// ObserveMissing reports a frame without a person. No state changes.
func (c *Classifier) ObserveMissing() Result {
	return Result{Label: NoPerson}
}

// Snapshot returns the buffer fill levels.
func (c *Classifier) Snapshot() Snapshot {
	return Snapshot{
		MotionLen:   c.motion.Len(),
		ActivityLen: c.activity.Len(),
		HasPrevious: c.prev != nil,
	}
}
