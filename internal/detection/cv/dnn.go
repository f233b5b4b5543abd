package cv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ivlev/anonymizer/internal/detection"
)

// DNNDetector runs an SSD-style network (TensorFlow frozen graph, Caffe or
// ONNX) whose output rows are [batch_id, class_id, confidence, x1, y1, x2, y2]
// with corners normalized to [0,1].
type DNNDetector struct {
	InputSize int
	Classes   map[int]bool // nil accepts every class

	kind string
	net  gocv.Net
	mu   sync.Mutex
}

func NewDNNDetector(kind, modelPath, configPath string) (*DNNDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}

	return &DNNDetector{InputSize: 300, kind: kind, net: net}, nil
}

func (d *DNNDetector) Detect(img image.Image, threshold float64) ([]detection.Region, error) {
	mat, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(d.InputSize, d.InputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	// Net holds per-call state between SetInput and Forward.
	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	w, h := float64(mat.Cols()), float64(mat.Rows())
	origin := img.Bounds().Min
	regions := []detection.Region{}

	for i := 0; i < rows.Rows(); i++ {
		score := float64(rows.GetFloatAt(i, 2))
		if score < threshold {
			continue
		}
		if d.Classes != nil && !d.Classes[int(rows.GetFloatAt(i, 1))] {
			continue
		}

		regions = append(regions, detection.Region{
			XMin:  clamp(float64(rows.GetFloatAt(i, 3)), 0, 1)*w + float64(origin.X),
			YMin:  clamp(float64(rows.GetFloatAt(i, 4)), 0, 1)*h + float64(origin.Y),
			XMax:  clamp(float64(rows.GetFloatAt(i, 5)), 0, 1)*w + float64(origin.X),
			YMax:  clamp(float64(rows.GetFloatAt(i, 6)), 0, 1)*h + float64(origin.Y),
			Score: score,
			Kind:  d.kind,
		})
	}

	return regions, nil
}

func (d *DNNDetector) Close() error {
	return d.net.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
