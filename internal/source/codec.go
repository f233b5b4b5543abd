package source

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// ToRGB returns img as an *image.RGBA with every alpha byte set to 255. Alpha
// in the input is dropped, not composited.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()

	if rgba, ok := img.(*image.RGBA); ok && rgba.Opaque() {
		return rgba
	}

	dst := image.NewRGBA(b)
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, b, img, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return dst
}

// Encode writes img in the format implied by ext (".jpg", ".png", ...).
func Encode(w io.Writer, img image.Image, ext string, jpegQuality int) error {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		if jpegQuality <= 0 {
			jpegQuality = 95
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case ".png":
		return png.Encode(w, img)
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Save encodes img to path, overwriting any existing file. A partially
// written file is removed on failure.
func Save(path string, img image.Image, jpegQuality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Encode(f, img, filepath.Ext(path), jpegQuality); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
