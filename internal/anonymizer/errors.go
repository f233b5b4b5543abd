package anonymizer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigMismatch is matched by every *MismatchError.
var ErrConfigMismatch = errors.New("detector kinds do not match threshold kinds")

// MismatchError lists the kinds configured on only one side.
type MismatchError struct {
	MissingThreshold []string // detectors without a threshold
	MissingDetector  []string // thresholds without a detector
}

func (e *MismatchError) Error() string {
	var parts []string
	if len(e.MissingThreshold) > 0 {
		parts = append(parts, "no threshold for "+strings.Join(e.MissingThreshold, ", "))
	}
	if len(e.MissingDetector) > 0 {
		parts = append(parts, "no detector for "+strings.Join(e.MissingDetector, ", "))
	}
	return fmt.Sprintf("%v: %s", ErrConfigMismatch, strings.Join(parts, "; "))
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrConfigMismatch
}

type Stage string

const (
	StageDetect    Stage = "detect"
	StageObfuscate Stage = "obfuscate"
)

// StageError is a detector or obfuscator failure for one image.
type StageError struct {
	Stage Stage
	Kind  string // detector kind; empty for the obfuscator
	Err   error
}

func (e *StageError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
