package main

import (
	"errors"
	"sort"

	"github.com/ivlev/anonymizer/internal/anonymizer"
	"github.com/ivlev/anonymizer/internal/config"
	"github.com/ivlev/anonymizer/internal/detection"
	_ "github.com/ivlev/anonymizer/internal/detection/cv"
	"github.com/ivlev/anonymizer/internal/obfuscation"
	_ "github.com/ivlev/anonymizer/internal/obfuscation/cv"
)

// buildPipeline creates every configured detector and the obfuscator. The
// detector/threshold key check is left to the pipeline itself.
func buildPipeline(cfg *config.Config) (*anonymizer.Anonymizer, error) {
	obf, err := obfuscation.NewObfuscator(cfg.Obfuscation, cfg.ObfuscationParams)
	if err != nil {
		return nil, err
	}

	kinds := make([]string, 0, len(cfg.Detectors))
	for kind := range cfg.Detectors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	detectors := make(map[string]detection.Detector, len(kinds))
	for _, kind := range kinds {
		d, err := detection.NewDetector(cfg.Detectors[kind].Variant, kind, cfg.DetectorParams(kind))
		if err != nil {
			return nil, errors.Join(err, anonymizer.New(obf, detectors, nil).Close())
		}
		detectors[kind] = d
	}

	a := anonymizer.New(obf, detectors, cfg.Thresholds)
	a.Parallel = cfg.ParallelDetectors
	return a, nil
}
