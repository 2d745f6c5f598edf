package extract

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const watermarkText = "frame-picker"

// Watermark returns a copy of img with the service tag drawn into the
// bottom-right corner on a translucent backing bar.
func Watermark(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, watermarkText).Ceil()
	padding := 6
	barWidth := textWidth + 2*padding
	barHeight := face.Height + 2*padding

	bar := image.Rect(
		bounds.Max.X-barWidth-padding,
		bounds.Max.Y-barHeight-padding,
		bounds.Max.X-padding,
		bounds.Max.Y-padding,
	).Intersect(bounds)
	draw.DrawMask(out, bar,
		image.NewUniform(color.Black), image.Point{},
		image.NewUniform(color.Alpha{A: 128}), image.Point{},
		draw.Over)

	drawer := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot: fixed.P(
			bar.Min.X+padding,
			bar.Max.Y-padding,
		),
	}
	drawer.DrawString(watermarkText)
	return out
}
