package anonymizer

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"io"
	"maps"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/anonymizer/internal/detection"
	"github.com/ivlev/anonymizer/internal/obfuscation"
)

// Anonymizer runs every configured detector on an image, each at its own
// threshold, and obfuscates the union of what they found.
type Anonymizer struct {
	// Parallel runs detectors of different kinds concurrently. The returned
	// detections keep the sequential order either way.
	Parallel bool

	obfuscator obfuscation.Obfuscator
	detectors  map[string]detection.Detector
	thresholds map[string]float64
	kinds      []string
}

// New copies both maps, so later changes to them by the caller have no effect.
func New(obfuscator obfuscation.Obfuscator, detectors map[string]detection.Detector, thresholds map[string]float64) *Anonymizer {
	detectors = maps.Clone(detectors)
	thresholds = maps.Clone(thresholds)

	kinds := make([]string, 0, len(detectors))
	for kind := range detectors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	return &Anonymizer{
		obfuscator: obfuscator,
		detectors:  detectors,
		thresholds: thresholds,
		kinds:      kinds,
	}
}

// Kinds returns the configured detector kinds in processing order.
func (a *Anonymizer) Kinds() []string {
	return append([]string(nil), a.kinds...)
}

// Validate checks that detectors and thresholds are configured for exactly
// the same kinds.
func (a *Anonymizer) Validate() error {
	var mismatch MismatchError
	for _, kind := range a.kinds {
		if _, ok := a.thresholds[kind]; !ok {
			mismatch.MissingThreshold = append(mismatch.MissingThreshold, kind)
		}
	}
	for kind := range a.thresholds {
		if _, ok := a.detectors[kind]; !ok {
			mismatch.MissingDetector = append(mismatch.MissingDetector, kind)
		}
	}

	if len(mismatch.MissingThreshold) == 0 && len(mismatch.MissingDetector) == 0 {
		return nil
	}
	sort.Strings(mismatch.MissingDetector)
	return &mismatch
}

// Anonymize returns the obfuscated image and every detection, ordered by kind
// and then by the order each detector emitted them. img is not modified.
func (a *Anonymizer) Anonymize(ctx context.Context, img image.Image) (image.Image, []detection.Region, error) {
	if err := a.Validate(); err != nil {
		return nil, nil, err
	}

	perKind := make([][]detection.Region, len(a.kinds))
	var err error
	if a.Parallel && len(a.kinds) > 1 {
		err = a.detectParallel(ctx, img, perKind)
	} else {
		err = a.detectSequential(ctx, img, perKind)
	}
	if err != nil {
		return nil, nil, err
	}

	regions := []detection.Region{}
	for _, found := range perKind {
		regions = append(regions, found...)
	}

	out, err := a.obfuscator.Obfuscate(img, regions)
	if err != nil {
		return nil, nil, &StageError{Stage: StageObfuscate, Err: err}
	}
	return out, regions, nil
}

func (a *Anonymizer) detect(img image.Image, i int) ([]detection.Region, error) {
	kind := a.kinds[i]
	found, err := a.detectors[kind].Detect(img, a.thresholds[kind])
	if err != nil {
		return nil, &StageError{Stage: StageDetect, Kind: kind, Err: err}
	}
	return found, nil
}

func (a *Anonymizer) detectSequential(ctx context.Context, img image.Image, perKind [][]detection.Region) error {
	for i := range a.kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		found, err := a.detect(img, i)
		if err != nil {
			return err
		}
		perKind[i] = found
	}
	return nil
}

func (a *Anonymizer) detectParallel(ctx context.Context, img image.Image, perKind [][]detection.Region) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range a.kinds {
		// Every detector but the first gets a private copy of the image.
		view := img
		if i > 0 {
			view = copyImage(img)
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := a.detect(view, i)
			if err != nil {
				return err
			}
			perKind[i] = found
			return nil
		})
	}
	return g.Wait()
}

func copyImage(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Close releases detectors that hold native resources.
func (a *Anonymizer) Close() error {
	var errs []error
	for _, kind := range a.kinds {
		if c, ok := a.detectors[kind].(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
