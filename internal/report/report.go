package report

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/anonymizer/internal/engine"
)

// Report is the YAML record of one batch run.
type Report struct {
	Version   string    `yaml:"version"`
	StartedAt time.Time `yaml:"started_at"`
	Input     string    `yaml:"input"`
	Output    string    `yaml:"output"`
	Kinds     []string  `yaml:"kinds"`
	Total     int       `yaml:"total"`
	Processed int       `yaml:"processed"`
	Regions   int       `yaml:"regions"`
	Duration  float64   `yaml:"duration_seconds"`
	Failures  []Failure `yaml:"failures,omitempty"`
	Error     string    `yaml:"error,omitempty"`
}

// Failure is one file that could not be anonymized.
type Failure struct {
	Path  string `yaml:"path"`
	Stage string `yaml:"stage"`
	Error string `yaml:"error"`
}

// New builds a report from a run's summary and returned error. s may be nil
// when the run failed before processing files.
func New(s *engine.Summary, runErr error, input, output string, kinds []string, started time.Time) *Report {
	r := &Report{
		Version:   "1.0",
		StartedAt: started,
		Input:     input,
		Output:    output,
		Kinds:     kinds,
	}

	if s != nil {
		r.Total = s.Total
		r.Processed = s.Processed
		r.Regions = s.Regions
		r.Duration = s.Duration.Seconds()
		for _, f := range s.Failed {
			r.Failures = append(r.Failures, Failure{Path: f.Path, Stage: string(f.Stage), Error: f.Err.Error()})
		}
	}

	// Per-file failures are already listed individually.
	var batchErr *engine.BatchError
	if runErr != nil && !errors.As(runErr, &batchErr) {
		r.Error = runErr.Error()
	}
	return r
}

// Write writes a report to a YAML file
func Write(r *Report, path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Read reads a report from a YAML file
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	return &r, nil
}
