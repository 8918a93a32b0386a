// Package dataset extracts pose feature vectors from a labeled image tree
// laid out as root/<class>/<image>.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/mat"

	"vigil/internal/detection"
	"vigil/internal/pose"
)

// ErrNoSamples means no image in the tree produced a pose.
var ErrNoSamples = errors.New("no pose data extracted")

// Dataset is the extracted feature matrix and labels.
type Dataset struct {
	X       *mat.Dense // N x 34, rows are flattened normalized keypoints
	Y       []int64    // class index per row
	Classes []string   // index -> class directory name
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Stats counts what happened to the input files.
type Stats struct {
	Files       int
	Undecodable int
	NoPerson    int
	Samples     int
}

// Classes lists the class directories under root in sorted order.
func Classes(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset root: %w", err)
	}
	var classes []string
	for _, e := range entries {
		if e.IsDir() {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)
	return classes, nil
}

// Extract runs det over every image and collects one feature row per image
// with a detected person. Files that do not decode as images and images
// without a person are skipped. Estimator errors abort the run.
func Extract(ctx context.Context, root string, det detection.PoseEstimator, log zerolog.Logger) (*Dataset, Stats, error) {
	var stats Stats

	classes, err := Classes(root)
	if err != nil {
		return nil, stats, err
	}
	log.Info().Strs("classes", classes).Msg("detected classes")

	var (
		features []float64
		labels   []int64
	)
	for idx, class := range classes {
		dir := filepath.Join(root, class)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read class %s: %w", class, err)
		}

		before := len(labels)
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			stats.Files++

			path := filepath.Join(dir, e.Name())
			data, img, err := loadImage(path)
			if err != nil {
				stats.Undecodable++
				log.Debug().Str("file", path).Err(err).Msg("skipping unreadable image")
				continue
			}

			kp, err := det.DetectPose(ctx, data)
			if err != nil {
				return nil, stats, fmt.Errorf("pose inference failed for %s: %w", path, err)
			}
			if kp == nil {
				stats.NoPerson++
				log.Debug().Str("file", path).Msg("no person detected")
				continue
			}

			b := img.Bounds()
			features = append(features, pose.Flatten(pose.Normalize(*kp, b.Dx(), b.Dy()))...)
			labels = append(labels, int64(idx))
		}
		log.Info().Str("class", class).Int("label", idx).Int("samples", len(labels)-before).Msg("class processed")
	}

	stats.Samples = len(labels)
	if len(labels) == 0 {
		return nil, stats, ErrNoSamples
	}

	return &Dataset{
		X:       mat.NewDense(len(labels), pose.FeatureLen, features),
		Y:       labels,
		Classes: classes,
	}, stats, nil
}

// loadImage reads and decodes path, returning JPEG bytes for the estimator.
func loadImage(path string) ([]byte, image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	if format == "jpeg" {
		return data, img, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), img, nil
}
