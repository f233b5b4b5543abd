package obfuscation

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/ivlev/anonymizer/internal/detection"
)

// Pixelate replaces each region with a mosaic of BlockSize-pixel cells.
type Pixelate struct {
	BlockSize int
}

func NewPixelate(blockSize int) (*Pixelate, error) {
	if blockSize == 0 {
		blockSize = 16
	}
	if blockSize < 1 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	return &Pixelate{BlockSize: blockSize}, nil
}

func (p *Pixelate) Obfuscate(img image.Image, regions []detection.Region) (image.Image, error) {
	dst := Clone(img)

	for _, r := range regions {
		rect := Clip(r, img.Bounds())
		if rect.Empty() {
			continue
		}

		cols := (rect.Dx() + p.BlockSize - 1) / p.BlockSize
		rows := (rect.Dy() + p.BlockSize - 1) / p.BlockSize
		small := image.NewRGBA(image.Rect(0, 0, cols, rows))

		draw.ApproxBiLinear.Scale(small, small.Bounds(), img, rect, draw.Src, nil)
		draw.NearestNeighbor.Scale(dst, rect, small, small.Bounds(), draw.Src, nil)
	}

	return dst, nil
}
