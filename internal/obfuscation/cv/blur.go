// Package cv provides the OpenCV-backed blur obfuscator. Importing it
// registers "blur" with the obfuscation registry.
package cv

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"gocv.io/x/gocv"

	"github.com/ivlev/anonymizer/internal/detection"
	"github.com/ivlev/anonymizer/internal/obfuscation"
)

// DefaultKernelSize is used when the kernel size is left at zero.
const DefaultKernelSize = 21

var maskColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func init() {
	obfuscation.Register("blur", func(p obfuscation.Params) (obfuscation.Obfuscator, error) {
		kind, err := obfuscation.ParseBoxKind(p.BoxKind)
		if err != nil {
			return nil, err
		}
		return NewBlur(p.KernelSize, p.Sigma, kind)
	})
}

// Blur applies a Gaussian blur inside each region, either over the whole box
// or only inside the inscribed ellipse. Every region is blurred from the
// original pixels, so overlapping regions do not blur twice.
type Blur struct {
	KernelSize int
	Sigma      float64 // 0 lets OpenCV derive sigma from the kernel size
	Kind       obfuscation.BoxKind
}

func NewBlur(kernelSize int, sigma float64, kind obfuscation.BoxKind) (*Blur, error) {
	if kernelSize == 0 {
		kernelSize = DefaultKernelSize
	}
	if kernelSize < 1 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("kernel size must be odd and positive, got %d", kernelSize)
	}
	if sigma < 0 {
		sigma = 0
	}
	if kind == "" {
		kind = obfuscation.BoxEllipse
	}
	if kind != obfuscation.BoxRect && kind != obfuscation.BoxEllipse {
		return nil, fmt.Errorf("unknown box kind: %s", kind)
	}
	return &Blur{KernelSize: kernelSize, Sigma: sigma, Kind: kind}, nil
}

func (b *Blur) Obfuscate(img image.Image, regions []detection.Region) (image.Image, error) {
	bounds := img.Bounds()
	dst := obfuscation.Clone(img)

	var rects []image.Rectangle
	for _, r := range regions {
		if rect := obfuscation.Clip(r, bounds); !rect.Empty() {
			rects = append(rects, rect.Sub(bounds.Min))
		}
	}
	if len(rects) == 0 {
		return dst, nil
	}

	// The pooled copy has a zero-based stride the Mat conversion can use.
	src, err := gocv.ImageToMatRGB(dst)
	if err != nil {
		return nil, fmt.Errorf("convert image to mat: %w", err)
	}
	defer src.Close()

	out := src.Clone()
	defer out.Close()

	for _, rect := range rects {
		if err := b.blurRegion(src, &out, rect); err != nil {
			return nil, err
		}
	}

	blurred, err := out.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert mat to image: %w", err)
	}
	for _, rect := range rects {
		draw.Draw(dst, rect.Add(bounds.Min), blurred, rect.Min, draw.Src)
	}
	return dst, nil
}

// blurRegion blurs rect of src into out. The filter reads a window padded by
// the kernel radius so edge pixels see their real neighbours.
func (b *Blur) blurRegion(src gocv.Mat, out *gocv.Mat, rect image.Rectangle) error {
	rad := b.KernelSize / 2
	win := rect.Inset(-rad).Intersect(image.Rect(0, 0, src.Cols(), src.Rows()))

	srcWin := src.Region(win)
	defer srcWin.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()

	ksize := image.Pt(b.KernelSize, b.KernelSize)
	if err := gocv.GaussianBlur(srcWin, &blurred, ksize, b.Sigma, b.Sigma, gocv.BorderReplicate); err != nil {
		return fmt.Errorf("gaussian blur: %w", err)
	}

	inner := blurred.Region(rect.Sub(win.Min))
	defer inner.Close()
	target := out.Region(rect)
	defer target.Close()

	if b.Kind == obfuscation.BoxRect {
		return inner.CopyTo(&target)
	}

	mask := gocv.Zeros(rect.Dy(), rect.Dx(), gocv.MatTypeCV8UC1)
	defer mask.Close()

	size := rect.Size()
	center := image.Pt(size.X/2, size.Y/2)
	axes := image.Pt(size.X/2, size.Y/2)
	if err := gocv.Ellipse(&mask, center, axes, 0, 0, 360, maskColor, -1); err != nil {
		return fmt.Errorf("draw ellipse mask: %w", err)
	}
	return inner.CopyToWithMask(&target, mask)
}
