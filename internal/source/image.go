package source

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageSource is a single raster file. It is decoded when the page is
// rendered, not when the source is created.
type ImageSource struct {
	path string
}

func NewImageSource(path string) *ImageSource {
	return &ImageSource{path: path}
}

func (s *ImageSource) PageCount() int {
	return 1
}

func (s *ImageSource) RenderPage(index int) (*image.RGBA, error) {
	if index != 0 {
		return nil, fmt.Errorf("page %d out of range for %s", index, s.path)
	}
	return Load(s.path)
}

func (s *ImageSource) Close() error {
	return nil
}

// Load decodes an image file into an opaque RGBA image.
func Load(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ToRGB(img), nil
}
