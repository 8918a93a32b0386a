// Package report renders stored monitor events as charts and summaries.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"vigil/internal/database"
)

// ErrNoEvents is returned when there is nothing to plot.
var ErrNoEvents = errors.New("no events to report")

// Size of the saved timeline image.
const (
	Width  = 12 * vg.Inch
	Height = 5 * vg.Inch
)

// labelColors keeps the common labels stable across reports.
var labelColors = map[string]color.Color{
	"running":  color.RGBA{R: 214, G: 39, B: 40, A: 255},
	"walking":  color.RGBA{R: 255, G: 127, B: 14, A: 255},
	"sitting":  color.RGBA{R: 31, G: 119, B: 180, A: 255},
	"standing": color.RGBA{R: 44, G: 160, B: 44, A: 255},
	"sleeping": color.RGBA{R: 148, G: 103, B: 189, A: 255},
	"AWAKE":    color.RGBA{R: 44, G: 160, B: 44, A: 255},
	"WATCHING": color.RGBA{R: 188, G: 189, B: 34, A: 255},
	"SLEEPING": color.RGBA{R: 148, G: 103, B: 189, A: 255},
}

var fallbackColor = color.RGBA{R: 127, G: 127, B: 127, A: 255}

// byLabel groups events by label, preserving time order within each group.
func byLabel(events []*database.Event) (map[string][]*database.Event, []string) {
	groups := make(map[string][]*database.Event)
	for _, e := range events {
		groups[e.Label] = append(groups[e.Label], e)
	}
	labels := make([]string, 0, len(groups))
	for l := range groups {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return groups, labels
}

// Plot builds the confidence-over-time scatter, one series per label.
// X is seconds since the first event.
func Plot(title string, events []*database.Event) (*plot.Plot, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	sorted := append([]*database.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	start := sorted[0].Timestamp

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Confidence"
	p.Y.Min = 0
	p.Y.Max = 1.05

	groups, labels := byLabel(sorted)
	for _, label := range labels {
		pts := make(plotter.XYs, 0, len(groups[label]))
		for _, e := range groups[label] {
			pts = append(pts, plotter.XY{X: e.Timestamp.Sub(start).Seconds(), Y: e.Confidence})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build series %q: %w", label, err)
		}
		c, ok := labelColors[label]
		if !ok {
			c = fallbackColor
		}
		sc.GlyphStyle.Color = c
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(label, sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())
	return p, nil
}

// Timeline renders events to out. The image format follows the file
// extension (png, svg, pdf...).
func Timeline(events []*database.Event, out string) error {
	p, err := Plot("Activity timeline", events)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, out); err != nil {
		return fmt.Errorf("failed to save timeline: %w", err)
	}
	return nil
}

// Durations sums how long each label was in effect. An event's label holds
// until the next event of the same kind, and the last one until end.
func Durations(events []*database.Event, end time.Time) map[string]time.Duration {
	sorted := append([]*database.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := make(map[string]time.Duration)
	last := make(map[string]*database.Event)
	for _, e := range sorted {
		if prev, ok := last[e.Kind]; ok {
			out[prev.Label] += e.Timestamp.Sub(prev.Timestamp)
		}
		last[e.Kind] = e
	}
	for _, prev := range last {
		if end.After(prev.Timestamp) {
			out[prev.Label] += end.Sub(prev.Timestamp)
		}
	}
	return out
}
