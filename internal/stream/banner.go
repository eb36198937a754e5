package stream

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placement positions a banner inside the target area.
type Placement int

const (
	PlacementTop Placement = iota
	PlacementCenter
)

var (
	bannerBackground = color.RGBA{A: 200}
	bannerText       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// RenderBanner draws a darkened strip with centered text over the given area
// of dst. Used for the global message and the inactivity pause notice.
func RenderBanner(dst draw.Image, text string, area image.Rectangle, placement Placement) {
	face := basicfont.Face7x13
	stripHeight := face.Height * 3

	var strip image.Rectangle
	switch placement {
	case PlacementCenter:
		mid := area.Min.Y + (area.Dy()-stripHeight)/2
		strip = image.Rect(area.Min.X, mid, area.Max.X, mid+stripHeight)
	default:
		strip = image.Rect(area.Min.X, area.Min.Y, area.Max.X, area.Min.Y+stripHeight)
	}

	draw.Draw(dst, strip, &image.Uniform{bannerBackground}, image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{bannerText},
		Face: face,
	}
	width := d.MeasureString(text).Ceil()
	x := strip.Min.X + (strip.Dx()-width)/2
	if x < strip.Min.X+4 {
		x = strip.Min.X + 4
	}
	y := strip.Min.Y + (stripHeight+face.Ascent)/2
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}
