package cv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ivlev/anonymizer/internal/detection"
)

// CascadeDetector runs an OpenCV Haar cascade. Cascades carry no confidence,
// so every hit scores 1.0.
type CascadeDetector struct {
	kind       string
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
}

func NewCascadeDetector(kind, cascadePath string) (*CascadeDetector, error) {
	if _, err := os.Stat(cascadePath); err != nil {
		return nil, fmt.Errorf("cascade file not found: %s", cascadePath)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade: %s", cascadePath)
	}

	return &CascadeDetector{kind: kind, classifier: classifier}, nil
}

func (d *CascadeDetector) Detect(img image.Image, threshold float64) ([]detection.Region, error) {
	if threshold > 1 {
		return []detection.Region{}, nil
	}

	mat, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	// CascadeClassifier is not safe for concurrent use.
	d.mu.Lock()
	rects := d.classifier.DetectMultiScale(mat)
	d.mu.Unlock()

	origin := img.Bounds().Min
	regions := make([]detection.Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, detection.NewRegion(r.Add(origin), 1.0, d.kind))
	}
	return regions, nil
}

func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
