package detection

import (
	"fmt"
	"image"
	"sort"
	"sync"
)

// Detector finds sensitive regions of one kind. Only regions the detector
// accepts at the given threshold are returned.
type Detector interface {
	Detect(img image.Image, threshold float64) ([]Region, error)
}

// Params configures a detector instance. Which fields matter depends on the
// variant.
type Params struct {
	ModelPath      string  `yaml:"model"`
	ConfigPath     string  `yaml:"config"`
	WeightsDir     string  `yaml:"weights_dir"`
	WeightsVersion string  `yaml:"weights_version"`
	Classes        []int   `yaml:"classes"`
	InputSize      int     `yaml:"input_size"`
	MinArea        int     `yaml:"min_area"`
	EdgeThreshold  float64 `yaml:"edge_threshold"`
}

// Factory builds a detector for the given kind.
type Factory func(kind string, p Params) (Detector, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a detector variant available to NewDetector. Registering the
// same variant twice panics.
func Register(variant string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[variant]; dup {
		panic("detection: Register called twice for variant " + variant)
	}
	registry[variant] = f
}

// NewDetector creates a detector based on the specified variant
func NewDetector(variant, kind string, p Params) (Detector, error) {
	if variant == "" {
		variant = "contrast"
	}

	registryMu.RLock()
	f, ok := registry[variant]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}

	d, err := f(kind, p)
	if err != nil {
		return nil, fmt.Errorf("create %s detector for %q: %w", variant, kind, err)
	}
	return d, nil
}

// Variants lists the registered detector variants in sorted order.
func Variants() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("contrast", func(kind string, p Params) (Detector, error) {
		d := NewContrastDetector(kind)
		if p.MinArea > 0 {
			d.MinBlockArea = p.MinArea
		}
		if p.EdgeThreshold > 0 {
			d.EdgeThreshold = p.EdgeThreshold
		}
		return d, nil
	})
}
