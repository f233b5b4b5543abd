package detection

import (
	"image"
	"math"
)

// Region is a scored, labeled axis-aligned box in the pixel space of the
// image it was detected on. Field order is the sidecar key order.
type Region struct {
	YMin  float64 `json:"y_min"`
	XMin  float64 `json:"x_min"`
	YMax  float64 `json:"y_max"`
	XMax  float64 `json:"x_max"`
	Score float64 `json:"score"`
	Kind  string  `json:"kind"`
}

// NewRegion builds a Region from an integer rectangle.
func NewRegion(r image.Rectangle, score float64, kind string) Region {
	r = r.Canon()
	return Region{
		YMin:  float64(r.Min.Y),
		XMin:  float64(r.Min.X),
		YMax:  float64(r.Max.Y),
		XMax:  float64(r.Max.X),
		Score: score,
		Kind:  kind,
	}
}

// Rect returns the smallest integer rectangle covering the region.
func (r Region) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.XMin)),
		int(math.Floor(r.YMin)),
		int(math.Ceil(r.XMax)),
		int(math.Ceil(r.YMax)),
	).Canon()
}

func (r Region) Width() float64  { return r.XMax - r.XMin }
func (r Region) Height() float64 { return r.YMax - r.YMin }
