package source

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Source yields the pages of one input file as opaque RGBA images.
type Source interface {
	PageCount() int
	RenderPage(index int) (*image.RGBA, error)
	Close() error
}

// Open picks a source by file extension: PDF documents are rasterized page by
// page, everything else is decoded as a single raster image.
func Open(path string, dpi int) (Source, error) {
	if IsMultiPage(path) {
		return NewFitzPDFSource(path, dpi)
	}
	return NewImageSource(path), nil
}

// IsMultiPage reports whether path is a document whose pages are written as
// separate output images.
func IsMultiPage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

type FitzPDFSource struct {
	doc *fitz.Document
	dpi int
}

func NewFitzPDFSource(path string, dpi int) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &FitzPDFSource{doc: doc, dpi: dpi}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) RenderPage(index int) (*image.RGBA, error) {
	img, err := f.doc.ImageDPI(index, float64(f.dpi))
	if err != nil {
		return nil, err
	}
	return ToRGB(img), nil
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
