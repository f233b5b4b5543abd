package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOutputNotDir = errors.New("output path exists and is not a directory")
	ErrInputNotDir  = errors.New("input path is not a directory")
)

type Stage string

const (
	StageDecode    Stage = "decode"
	StageInference Stage = "inference"
	StageEncode    Stage = "encode"
)

// FileError is a failure processing one input file.
type FileError struct {
	Path  string // relative to the input root
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Path, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// BatchError is returned when one or more files failed and the runner was
// not asked to stop at the first failure.
type BatchError struct {
	Failed []*FileError
}

func (e *BatchError) Error() string {
	lines := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		lines = append(lines, f.Error())
	}
	return fmt.Sprintf("%d file(s) failed:\n%s", len(e.Failed), strings.Join(lines, "\n"))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}
