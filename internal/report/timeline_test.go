package report

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/database"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ev(kind, label string, offset time.Duration, conf float64) *database.Event {
	return &database.Event{Kind: kind, Label: label, Timestamp: t0.Add(offset), Confidence: conf}
}

func sampleEvents() []*database.Event {
	return []*database.Event{
		ev(database.KindActivity, "standing", 0, 0.85),
		ev(database.KindSleep, "WATCHING", 5*time.Second, 0),
		ev(database.KindActivity, "walking", 10*time.Second, 0.9),
		ev(database.KindSleep, "SLEEPING", 8*time.Second, 1.0),
		ev(database.KindActivity, "custom", 20*time.Second, 0.5),
	}
}

func TestTimeline_WritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "timeline.png")
	require.NoError(t, Timeline(sampleEvents(), out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, 0)
	assert.Greater(t, cfg.Height, 0)
}

func TestTimeline_NoEvents(t *testing.T) {
	err := Timeline(nil, filepath.Join(t.TempDir(), "x.png"))
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestByLabel(t *testing.T) {
	groups, labels := byLabel(sampleEvents())
	assert.Equal(t, []string{"SLEEPING", "WATCHING", "custom", "standing", "walking"}, labels)
	assert.Len(t, groups["standing"], 1)

	p, err := Plot("t", sampleEvents())
	require.NoError(t, err)
	assert.Equal(t, "t", p.Title.Text)
}

func TestDurations(t *testing.T) {
	got := Durations(sampleEvents(), t0.Add(30*time.Second))
	want := map[string]time.Duration{
		"standing": 10 * time.Second,
		"walking":  10 * time.Second,
		"custom":   10 * time.Second,
		"WATCHING": 3 * time.Second,
		"SLEEPING": 22 * time.Second,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("durations mismatch (-want +got):\n%s", diff)
	}
}
