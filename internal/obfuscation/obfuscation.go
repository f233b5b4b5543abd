package obfuscation

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"
	"strings"
	"sync"

	"github.com/ivlev/anonymizer/internal/detection"
	"github.com/ivlev/anonymizer/internal/system"
)

// Obfuscator hides the given regions. It returns a new image of the same
// bounds and never modifies img.
type Obfuscator interface {
	Obfuscate(img image.Image, regions []detection.Region) (image.Image, error)
}

// Params configures an obfuscator. Which fields matter depends on the name.
type Params struct {
	KernelSize int     `yaml:"kernel_size"`
	Sigma      float64 `yaml:"sigma"`
	BoxKind    string  `yaml:"box_kind"`
	BlockSize  int     `yaml:"block_size"`
	Color      string  `yaml:"color"`
}

// BoxKind is the shape obfuscated inside each region.
type BoxKind string

const (
	BoxRect    BoxKind = "box"
	BoxEllipse BoxKind = "ellipse"
)

// ParseBoxKind accepts "box" and "ellipse". Empty means ellipse.
func ParseBoxKind(s string) (BoxKind, error) {
	switch k := BoxKind(strings.ToLower(s)); k {
	case "":
		return BoxEllipse, nil
	case BoxRect, BoxEllipse:
		return k, nil
	default:
		return "", fmt.Errorf("unknown box kind: %s", s)
	}
}

// Factory builds an obfuscator from its parameters.
type Factory func(p Params) (Obfuscator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an obfuscator available to NewObfuscator. Registering the
// same name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("obfuscation: Register called twice for " + name)
	}
	registry[name] = f
}

// NewObfuscator creates an obfuscator by name. pixelate and fill are always
// available; blur is registered by the cv package. An empty name means blur.
func NewObfuscator(name string, p Params) (Obfuscator, error) {
	name = strings.ToLower(name)
	if name == "" {
		name = "blur"
	}

	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown obfuscation: %s", name)
	}
	return f(p)
}

// Names lists the registered obfuscators in sorted order.
func Names() []string {
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
	Register("pixelate", func(p Params) (Obfuscator, error) {
		return NewPixelate(p.BlockSize)
	})
	Register("fill", func(p Params) (Obfuscator, error) {
		c, err := parseHexColor(p.Color)
		if err != nil {
			return nil, err
		}
		return &Fill{Color: c}, nil
	})
}

// Clone copies img into a pooled RGBA buffer with the same bounds.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := system.GetImage(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Clip returns the region's pixel rectangle limited to bounds.
func Clip(r detection.Region, bounds image.Rectangle) image.Rectangle {
	return r.Rect().Intersect(bounds)
}

func parseHexColor(s string) (color.RGBA, error) {
	c := color.RGBA{A: 255}
	if s == "" {
		return c, nil
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return c, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}
