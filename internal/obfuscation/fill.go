package obfuscation

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/ivlev/anonymizer/internal/detection"
)

// Fill paints every region with a solid color.
type Fill struct {
	Color color.RGBA
}

func (f *Fill) Obfuscate(img image.Image, regions []detection.Region) (image.Image, error) {
	dst := Clone(img)
	fill := image.NewUniform(f.Color)

	for _, r := range regions {
		draw.Draw(dst, Clip(r, img.Bounds()), fill, image.Point{}, draw.Src)
	}

	return dst, nil
}
