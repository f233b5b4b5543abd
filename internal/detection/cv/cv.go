// Package cv provides OpenCV-backed detectors. Importing it registers the
// "cascade" and "dnn" variants with the detection registry.
package cv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ivlev/anonymizer/internal/detection"
)

func init() {
	detection.Register("cascade", func(kind string, p detection.Params) (detection.Detector, error) {
		return NewCascadeDetector(kind, p.ModelPath)
	})
	detection.Register("dnn", func(kind string, p detection.Params) (detection.Detector, error) {
		model := p.ModelPath
		if model == "" {
			model = detection.WeightsPath(p.WeightsDir, kind, p.WeightsVersion)
		}
		d, err := NewDNNDetector(kind, model, p.ConfigPath)
		if err != nil {
			return nil, err
		}
		if p.InputSize > 0 {
			d.InputSize = p.InputSize
		}
		d.Classes = classSet(p.Classes)
		return d, nil
	})
}

// toMat converts an image into a BGR Mat. The caller closes it.
func toMat(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert image to mat: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("converted image is empty")
	}
	return mat, nil
}

func classSet(ids []int) map[int]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
