package detection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SidecarExt replaces the image extension for detection metadata files.
const SidecarExt = ".json"

// MarshalRegions encodes regions as an indented JSON array. An empty or nil
// list encodes as [].
func MarshalRegions(regions []Region) ([]byte, error) {
	if regions == nil {
		regions = []Region{}
	}
	return json.MarshalIndent(regions, "", "  ")
}

// WriteSidecar writes the detections of one image to path, replacing any
// existing file. The data goes to a temporary file in the same directory
// first and is renamed into place, so concurrent writers to one path never
// leave a mixed file behind.
func WriteSidecar(path string, regions []Region) error {
	data, err := MarshalRegions(regions)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadSidecar parses a sidecar file written by WriteSidecar.
func ReadSidecar(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var regions []Region
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return regions, nil
}
