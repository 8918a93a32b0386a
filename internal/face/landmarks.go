// Package face reads eye openness from MediaPipe face-mesh landmarks.
package face

import (
	"fmt"
	"math"
)

// Eye landmark indices in face-mesh numbering, ordered p0..p5:
// p0/p3 are the eye corners, p1/p5 and p2/p4 the upper/lower lid pairs.
var (
	LeftEye  = [6]int{33, 160, 158, 133, 153, 144}
	RightEye = [6]int{362, 385, 387, 263, 373, 380}
)

// MinLandmarks is the shortest set EyeAspectRatio accepts.
var MinLandmarks = maxIndex(LeftEye, RightEye) + 1

func maxIndex(eyes ...[6]int) int {
	m := 0
	for _, eye := range eyes {
		for _, i := range eye {
			m = max(m, i)
		}
	}
	return m
}

// Landmark is a face landmark in normalized image coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LandmarkSet is the landmark list for one face.
type LandmarkSet []Landmark

// FromPairs builds a LandmarkSet from [x, y] pairs, skipping malformed entries
// by zero-filling them so indices stay aligned.
func FromPairs(pairs [][]float64) LandmarkSet {
	lm := make(LandmarkSet, len(pairs))
	for i, p := range pairs {
		if len(p) >= 2 {
			lm[i] = Landmark{X: p[0], Y: p[1]}
		}
	}
	return lm
}

type pixel struct{ x, y float64 }

func dist(a, b pixel) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

func eyeRatio(lm LandmarkSet, idx [6]int, w, h float64) float64 {
	var p [6]pixel
	for i, j := range idx {
		p[i] = pixel{lm[j].X * w, lm[j].Y * h}
	}
	width := dist(p[0], p[3])
	if width == 0 {
		return math.Inf(1)
	}
	return (dist(p[1], p[5]) + dist(p[2], p[4])) / (2 * width)
}

// EyeAspectRatio averages the eye-aspect-ratio of both eyes, measured in
// pixel space for a frame of the given size. Low values mean closed eyes.
func EyeAspectRatio(lm LandmarkSet, width, height int) (float64, error) {
	if len(lm) < MinLandmarks {
		return 0, fmt.Errorf("landmark set too short: have %d, need at least %d", len(lm), MinLandmarks)
	}
	w, h := float64(width), float64(height)
	return (eyeRatio(lm, LeftEye, w, h) + eyeRatio(lm, RightEye, w, h)) / 2, nil
}
