package dataset

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"vigil/internal/pose"
)

// Output file names inside the save directory.
const (
	FeaturesFile = "X.bin"
	LabelsFile   = "y.bin"
	ClassesFile  = "classes.json"
)

// labelsMagic starts every labels file.
var labelsMagic = [4]byte{'V', 'G', 'L', 'Y'}

// classIndex is the classes.json layout.
type classIndex struct {
	Classes []string       `json:"classes"`
	Labels  map[string]int `json:"labels"`
}

// Save writes the dataset into dir, creating it if needed.
func (d *Dataset) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	xb, err := d.X.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FeaturesFile), xb, 0o644); err != nil {
		return fmt.Errorf("failed to write features: %w", err)
	}

	if err := writeLabels(filepath.Join(dir, LabelsFile), d.Y); err != nil {
		return err
	}

	idx := classIndex{Classes: d.Classes, Labels: make(map[string]int, len(d.Classes))}
	for i, c := range d.Classes {
		idx.Labels[c] = i
	}
	cb, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ClassesFile), cb, 0o644); err != nil {
		return fmt.Errorf("failed to write classes: %w", err)
	}
	return nil
}

func writeLabels(path string, labels []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create labels file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, labelsMagic); err != nil {
		f.Close()
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(labels))); err != nil {
		f.Close()
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, labels); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return f.Close()
}

func readLabels(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("failed to read labels header: %w", err)
	}
	if magic != labelsMagic {
		return nil, errors.New("not a labels file")
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("failed to read labels count: %w", err)
	}
	labels := make([]int64, n)
	if err := binary.Read(r, binary.LittleEndian, labels); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("labels file truncated: want %d labels", n)
		}
		return nil, err
	}
	return labels, nil
}

// Load reads a dataset written by Save.
func Load(dir string) (*Dataset, error) {
	xb, err := os.ReadFile(filepath.Join(dir, FeaturesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read features: %w", err)
	}
	var x mat.Dense
	if err := x.UnmarshalBinary(xb); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}

	labels, err := readLabels(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}

	cb, err := os.ReadFile(filepath.Join(dir, ClassesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read classes: %w", err)
	}
	var idx classIndex
	if err := json.Unmarshal(cb, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode classes: %w", err)
	}

	rows, cols := x.Dims()
	if cols != pose.FeatureLen {
		return nil, fmt.Errorf("features have %d columns, want %d", cols, pose.FeatureLen)
	}
	if rows != len(labels) {
		return nil, fmt.Errorf("%d feature rows but %d labels", rows, len(labels))
	}
	return &Dataset{X: &x, Y: labels, Classes: idx.Classes}, nil
}
