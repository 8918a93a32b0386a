//go:build !gocv

package camera

import (
	"context"
	"fmt"
)

// GoCVAvailable reports whether this build can capture through OpenCV.
const GoCVAvailable = false

// OpenGoCV is unavailable without the gocv build tag.
func OpenGoCV(ctx context.Context, cfg Config) (Source, error) {
	return nil, fmt.Errorf("%w: built without gocv support (rebuild with -tags gocv)", ErrOpen)
}
