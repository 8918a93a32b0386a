package detection

import (
	"context"

	"vigil/internal/face"
)

// LandmarkEstimator finds the facial landmarks of the first face in a frame.
// A nil set with a nil error means no face was detected.
type LandmarkEstimator interface {
	DetectFace(ctx context.Context, jpeg []byte) (face.LandmarkSet, error)
}

// FaceMesh is one face in a landmark response. Coordinates are normalized to [0,1].
type FaceMesh struct {
	Landmarks [][]float64 `json:"landmarks"`
}

// LandmarkResult is the /landmarks response body.
type LandmarkResult struct {
	Faces           []FaceMesh `json:"faces"`
	InferenceTimeMs float32    `json:"inference_time_ms"`
}

// FaceLandmarker is the client for the face-mesh sidecar.
type FaceLandmarker struct {
	*sidecar
}

// NewFaceLandmarker creates a new face-mesh sidecar client
func NewFaceLandmarker(cfg Config) *FaceLandmarker {
	return &FaceLandmarker{sidecar: newSidecar("face", cfg)}
}

// DetectFace returns the first face's landmarks, or nil when there is none.
func (f *FaceLandmarker) DetectFace(ctx context.Context, jpeg []byte) (face.LandmarkSet, error) {
	var result LandmarkResult
	if err := f.post(ctx, "/landmarks", jpeg, &result); err != nil {
		return nil, err
	}
	if len(result.Faces) == 0 || len(result.Faces[0].Landmarks) == 0 {
		return nil, nil
	}
	return face.FromPairs(result.Faces[0].Landmarks), nil
}
