// Package pose holds the 17-point body keypoint model and the geometric
// features derived from it.
package pose

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Keypoint indices in COCO order, as produced by YOLO pose models.
const (
	Nose = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	NumKeypoints
)

// FeatureLen is the length of a flattened keypoint set.
const FeatureLen = NumKeypoints * 2

// angleEpsilon keeps the cosine finite for zero-length limbs.
const angleEpsilon = 1e-6

// legJoints are the keypoints whose displacement drives the motion signal.
var legJoints = [...]int{LeftKnee, RightKnee, LeftAnkle, RightAnkle}

// Point is a 2D position, in pixels or normalized to [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// KeypointSet is one person's 17 body keypoints.
type KeypointSet [NumKeypoints]Point

// FromPairs builds a KeypointSet from [x, y] pairs. ok is false unless
// exactly 17 well-formed pairs are given.
func FromPairs(pairs [][]float64) (kp KeypointSet, ok bool) {
	if len(pairs) != NumKeypoints {
		return kp, false
	}
	for i, p := range pairs {
		if len(p) < 2 {
			return kp, false
		}
		kp[i] = Point{X: p[0], Y: p[1]}
	}
	return kp, true
}

// Normalize divides x by the frame width and y by the frame height.
func Normalize(kp KeypointSet, width, height int) KeypointSet {
	w, h := float64(width), float64(height)
	var out KeypointSet
	for i, p := range kp {
		out[i] = Point{X: p.X / w, Y: p.Y / h}
	}
	return out
}

// Flatten returns x0, y0, x1, y1, ... for all keypoints.
func Flatten(kp KeypointSet) []float64 {
	out := make([]float64, 0, FeatureLen)
	for _, p := range kp {
		out = append(out, p.X, p.Y)
	}
	return out
}

func legVector(kp *KeypointSet) []float64 {
	v := make([]float64, 0, len(legJoints)*2)
	for _, idx := range legJoints {
		v = append(v, kp[idx].X, kp[idx].Y)
	}
	return v
}

// LegMotion is the L2 distance between the knee and ankle coordinates of two
// consecutive keypoint sets, taken as one flattened 8-value vector. With no
// previous set the motion is 0.
func LegMotion(curr KeypointSet, prev *KeypointSet) float64 {
	if prev == nil {
		return 0
	}
	return floats.Distance(legVector(&curr), legVector(prev), 2)
}

// JointAngle returns the angle at b, in radians, between b→a and b→c.
func JointAngle(a, b, c Point) float64 {
	ba := []float64{a.X - b.X, a.Y - b.Y}
	bc := []float64{c.X - b.X, c.Y - b.Y}

	cos := floats.Dot(ba, bc) / (floats.Norm(ba, 2)*floats.Norm(bc, 2) + angleEpsilon)
	return math.Acos(math.Max(-1, math.Min(1, cos)))
}

// KneeAngle averages the left and right hip-knee-ankle angles.
func KneeAngle(kp KeypointSet) float64 {
	left := JointAngle(kp[LeftHip], kp[LeftKnee], kp[LeftAnkle])
	right := JointAngle(kp[RightHip], kp[RightKnee], kp[RightAnkle])
	return (left + right) / 2
}
