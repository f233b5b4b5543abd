package detection

import (
	"image"
	"image/color"
	"math"
)

// ContrastDetector finds high-contrast blocks (text, plates, signage) using a
// Sobel edge map, dilation and connected components. It needs no model file.
type ContrastDetector struct {
	Kind          string
	MinBlockArea  int     // Minimum area in pixels²
	EdgeThreshold float64 // Gradient magnitude threshold
	DilateKernel  int
	DilateIter    int
}

// NewContrastDetector creates a new contrast-based detector with default settings
func NewContrastDetector(kind string) *ContrastDetector {
	return &ContrastDetector{
		Kind:          kind,
		MinBlockArea:  500,  // ~22x22 pixels minimum
		EdgeThreshold: 30.0, // Moderate sensitivity
		DilateKernel:  5,
		DilateIter:    2,
	}
}

// Detect returns one region per connected edge component. The score is the
// share of edge pixels inside the component's bounding box.
func (d *ContrastDetector) Detect(img image.Image, threshold float64) ([]Region, error) {
	bounds := img.Bounds()
	gray := newPlane(img)
	edges := gray.sobel(d.EdgeThreshold)
	dilated := edges.dilate(d.DilateKernel, d.DilateIter)

	regions := []Region{}
	for _, rect := range dilated.components() {
		area := rect.Dx() * rect.Dy()
		if area < d.MinBlockArea {
			continue
		}

		score := float64(dilated.count(rect)) / float64(area)
		if score < threshold {
			continue
		}
		regions = append(regions, NewRegion(rect.Add(bounds.Min), math.Min(score, 1), d.Kind))
	}

	return regions, nil
}

// plane is a grayscale buffer with origin at (0,0).
type plane struct {
	w, h int
	pix  []uint8
}

func newPlane(img image.Image) *plane {
	b := img.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]uint8, b.Dx()*b.Dy())}

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < p.h; y++ {
			copy(p.pix[y*p.w:(y+1)*p.w], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return p
	}

	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			p.pix[y*p.w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return p
}

func (p *plane) at(x, y int) uint8 { return p.pix[y*p.w+x] }

var (
	sobelX = [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY = [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
)

// sobel returns a binary edge plane (0 or 255).
func (p *plane) sobel(threshold float64) *plane {
	out := &plane{w: p.w, h: p.h, pix: make([]uint8, len(p.pix))}

	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			var sumX, sumY float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := float64(p.at(x+kx, y+ky))
					sumX += v * sobelX[ky+1][kx+1]
					sumY += v * sobelY[ky+1][kx+1]
				}
			}
			if math.Sqrt(sumX*sumX+sumY*sumY) > threshold {
				out.pix[y*p.w+x] = 255
			}
		}
	}

	return out
}

// dilate connects nearby edges with a square max filter.
func (p *plane) dilate(kernel, iterations int) *plane {
	cur := &plane{w: p.w, h: p.h, pix: append([]uint8(nil), p.pix...)}
	half := kernel / 2

	for i := 0; i < iterations; i++ {
		next := &plane{w: p.w, h: p.h, pix: make([]uint8, len(p.pix))}
		for y := half; y < p.h-half; y++ {
			for x := half; x < p.w-half; x++ {
				var m uint8
				for ky := -half; ky <= half && m < 255; ky++ {
					for kx := -half; kx <= half; kx++ {
						if v := cur.at(x+kx, y+ky); v > m {
							m = v
						}
					}
				}
				next.pix[y*p.w+x] = m
			}
		}
		cur = next
	}

	return cur
}

// components returns bounding rectangles of 4-connected bright areas.
func (p *plane) components() []image.Rectangle {
	visited := make([]bool, len(p.pix))
	var rects []image.Rectangle

	for start := range p.pix {
		if visited[start] || p.pix[start] <= 128 {
			continue
		}

		minX, minY := p.w, p.h
		maxX, maxY := -1, -1
		stack := []int{start}
		visited[start] = true

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%p.w, i/p.w

			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
				if n[0] < 0 || n[0] >= p.w || n[1] < 0 || n[1] >= p.h {
					continue
				}
				j := n[1]*p.w + n[0]
				if !visited[j] && p.pix[j] > 128 {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}

		rects = append(rects, image.Rect(minX, minY, maxX+1, maxY+1))
	}

	return rects
}

// count returns the number of bright pixels inside r.
func (p *plane) count(r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if p.at(x, y) > 128 {
				n++
			}
		}
	}
	return n
}
