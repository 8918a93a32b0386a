package detection

import (
	"context"

	"vigil/internal/pose"
)

// PoseEstimator finds the body keypoints of the first person in a frame.
// A nil set with a nil error means nobody was detected.
type PoseEstimator interface {
	DetectPose(ctx context.Context, jpeg []byte) (*pose.KeypointSet, error)
}

// PosePerson is one person in a pose response.
type PosePerson struct {
	Keypoints  [][]float64 `json:"keypoints"`
	Confidence float32     `json:"confidence,omitempty"`
}

// PoseResult is the /pose response body.
type PoseResult struct {
	People          []PosePerson `json:"people"`
	InferenceTimeMs float32      `json:"inference_time_ms"`
	Device          string       `json:"device,omitempty"`
}

// PoseDetector is the client for the YOLO pose sidecar.
type PoseDetector struct {
	*sidecar
}

// NewPoseDetector creates a new pose sidecar client
func NewPoseDetector(cfg Config) *PoseDetector {
	return &PoseDetector{sidecar: newSidecar("pose", cfg)}
}

// Estimate returns the raw sidecar response.
func (d *PoseDetector) Estimate(ctx context.Context, jpeg []byte) (*PoseResult, error) {
	var result PoseResult
	if err := d.post(ctx, "/pose", jpeg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DetectPose returns the first person's keypoints in pixel coordinates, or
// nil when no complete 17-point skeleton was found.
func (d *PoseDetector) DetectPose(ctx context.Context, jpeg []byte) (*pose.KeypointSet, error) {
	result, err := d.Estimate(ctx, jpeg)
	if err != nil {
		return nil, err
	}
	return firstPerson(result), nil
}

func firstPerson(result *PoseResult) *pose.KeypointSet {
	if len(result.People) == 0 {
		return nil
	}
	kp, ok := pose.FromPairs(result.People[0].Keypoints)
	if !ok {
		return nil
	}
	return &kp
}
