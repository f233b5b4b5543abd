package detection

import (
	"fmt"
	"path/filepath"
)

const DefaultWeightsVersion = "1.0.0"

// WeightsPath resolves the model file for a detector kind:
// <base>/weights_<kind>_v<version>.pb
func WeightsPath(base, kind, version string) string {
	if version == "" {
		version = DefaultWeightsVersion
	}
	return filepath.Join(base, fmt.Sprintf("weights_%s_v%s.pb", kind, version))
}
