package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func countColor(img *image.RGBA, r image.Rectangle, c color.RGBA) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func TestActivityOverlay(t *testing.T) {
	o := ActivityOverlay("walking", 0.9)
	assert.Equal(t, 520, o.BoxW)
	assert.Equal(t, 80, o.BoxH)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "Activity: walking", o.Lines[0].Text)
	assert.Equal(t, Green, o.Lines[0].Color)
	assert.Equal(t, "Confidence: 0.90", o.Lines[1].Text)
	assert.Equal(t, Cyan, o.Lines[1].Color)
}

func TestSleepOverlay(t *testing.T) {
	awake := SleepOverlay(false)
	assert.Equal(t, "Status: AWAKE", awake.Lines[0].Text)
	assert.Equal(t, Green, awake.Lines[0].Color)

	asleep := SleepOverlay(true)
	assert.Equal(t, "Status: SLEEPING", asleep.Lines[0].Text)
	assert.Equal(t, Red, asleep.Lines[0].Color)
	assert.Equal(t, 360, asleep.BoxW)
	assert.Equal(t, 60, asleep.BoxH)
}

func TestDraw_BoxAndText(t *testing.T) {
	src := grayFrame(640, 480)
	out := New().Draw(src, ActivityOverlay("running", 0.95))

	box := image.Rect(0, 0, 520, 80)
	assert.Positive(t, countColor(out, box, Green), "label text")
	assert.Positive(t, countColor(out, box, Cyan), "confidence text")
	assert.Positive(t, countColor(out, box, Black), "box fill")

	// outside the box the frame is untouched
	assert.Equal(t, color.RGBA{128, 128, 128, 128}, out.RGBAAt(600, 400))
	assert.Equal(t, color.RGBA{128, 128, 128, 128}, src.RGBAAt(10, 10), "source must not be modified")
}

func TestDraw_SmallFrameClipsBox(t *testing.T) {
	out := New().Draw(grayFrame(100, 30), SleepOverlay(true))
	assert.Equal(t, image.Rect(0, 0, 100, 30), out.Bounds())
	assert.Equal(t, Black, out.RGBAAt(5, 29))
}

func TestEncode(t *testing.T) {
	r := New()
	data, err := r.Encode(r.Draw(grayFrame(64, 48), SleepOverlay(false)))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}
