// Package render draws the status overlay onto frames.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay colors
var (
	Black = color.RGBA{0, 0, 0, 255}
	Green = color.RGBA{0, 255, 0, 255}
	Red   = color.RGBA{255, 0, 0, 255}
	Cyan  = color.RGBA{0, 255, 255, 255}
)

// DefaultQuality is the JPEG quality used by Encode.
const DefaultQuality = 85

// TextLine is one line of overlay text. (X, Y) is the baseline origin.
type TextLine struct {
	Text  string
	X, Y  int
	Color color.RGBA
	Scale int
}

// Overlay is a filled black box anchored at the top-left corner with text on top.
type Overlay struct {
	BoxW, BoxH int
	Lines      []TextLine
}

// ActivityOverlay is the activity-mode overlay.
func ActivityOverlay(label string, confidence float64) Overlay {
	return Overlay{
		BoxW: 520,
		BoxH: 80,
		Lines: []TextLine{
			{Text: "Activity: " + label, X: 20, Y: 35, Color: Green, Scale: 2},
			{Text: fmt.Sprintf("Confidence: %.2f", confidence), X: 20, Y: 70, Color: Cyan, Scale: 2},
		},
	}
}

// SleepOverlay is the sleep-only overlay. Anything short of SLEEPING reads as AWAKE.
func SleepOverlay(sleeping bool) Overlay {
	line := TextLine{Text: "Status: AWAKE", X: 20, Y: 40, Color: Green, Scale: 2}
	if sleeping {
		line.Text = "Status: SLEEPING"
		line.Color = Red
	}
	return Overlay{BoxW: 360, BoxH: 60, Lines: []TextLine{line}}
}

// Renderer draws overlays and encodes the result.
type Renderer struct {
	face    *basicfont.Face
	quality int
}

// New creates a renderer using the 7x13 bitmap font.
func New() *Renderer {
	return &Renderer{face: basicfont.Face7x13, quality: DefaultQuality}
}

// Draw returns a copy of img with the overlay applied. img is not modified.
func (r *Renderer) Draw(img image.Image, o Overlay) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	box := image.Rect(0, 0, o.BoxW, o.BoxH).Intersect(rgba.Bounds())
	draw.Draw(rgba, box, image.NewUniform(Black), image.Point{}, draw.Src)

	for _, line := range o.Lines {
		r.drawText(rgba, line)
	}
	return rgba
}

// drawText renders the line at 1x and scales it up with nearest-neighbor
// sampling so the bitmap font stays crisp.
func (r *Renderer) drawText(dst *image.RGBA, line TextLine) {
	scale := line.Scale
	if scale < 1 {
		scale = 1
	}
	if line.Text == "" {
		return
	}

	width := font.MeasureString(r.face, line.Text).Ceil()
	height := r.face.Height
	glyphs := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(line.Color),
		Face: r.face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(r.face.Ascent)},
	}
	d.DrawString(line.Text)

	top := line.Y - r.face.Ascent*scale
	target := image.Rect(line.X, top, line.X+width*scale, top+height*scale)
	xdraw.NearestNeighbor.Scale(dst, target, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// Encode compresses the frame as JPEG.
func (r *Renderer) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
