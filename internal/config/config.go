package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/anonymizer/internal/detection"
	"github.com/ivlev/anonymizer/internal/obfuscation"
)

// DetectorConfig selects a detector variant for one kind.
type DetectorConfig struct {
	Variant          string `yaml:"variant"`
	detection.Params `yaml:",inline"`
}

type Config struct {
	Input      string   `yaml:"input"`
	Output     string   `yaml:"output"`
	Extensions []string `yaml:"extensions"`
	WriteJSON  bool     `yaml:"write_json"`

	Workers           int  `yaml:"workers"` // 0 = auto
	FailFast          bool `yaml:"fail_fast"`
	ParallelDetectors bool `yaml:"parallel_detectors"`
	JPEGQuality       int  `yaml:"jpeg_quality"`
	DPI               int  `yaml:"dpi"`

	WeightsDir     string                    `yaml:"weights_dir"`
	WeightsVersion string                    `yaml:"weights_version"`
	Detectors      map[string]DetectorConfig `yaml:"detectors"`
	Thresholds     map[string]float64        `yaml:"thresholds"`

	Obfuscation       string             `yaml:"obfuscation"`
	ObfuscationParams obfuscation.Params `yaml:"obfuscation_params"`

	Report string `yaml:"report"`
	LogDir string `yaml:"log_dir"`
}

// Default mirrors the stock setup: face and plate networks at 0.3, Gaussian
// blur over an ellipse.
func Default() *Config {
	return &Config{
		Extensions:  []string{"jpg", "png"},
		JPEGQuality: 95,
		DPI:         150,
		WeightsDir:  "weights",
		Detectors: map[string]DetectorConfig{
			"face":  {Variant: "dnn"},
			"plate": {Variant: "dnn"},
		},
		Thresholds: map[string]float64{
			"face":  0.3,
			"plate": 0.3,
		},
		Obfuscation: "blur",
		ObfuscationParams: obfuscation.Params{
			KernelSize: 21,
			Sigma:      2,
			BoxKind:    string(obfuscation.BoxEllipse),
		},
	}
}

// Load starts from Default, applies the YAML file at path (if any), then
// ANONYMIZER_* environment variables. A .env file in the working directory
// is loaded first when present.
func Load(path string) (*Config, error) {
	// Best-effort: .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	// Detector and threshold maps from the file replace the defaults
	// instead of merging into them.
	next := *c
	next.Detectors, next.Thresholds = nil, nil
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if next.Detectors == nil {
		next.Detectors = c.Detectors
	}
	if next.Thresholds == nil {
		next.Thresholds = c.Thresholds
	}

	*c = next
	return nil
}

func (c *Config) applyEnv() {
	c.Input = getEnv("ANONYMIZER_INPUT", c.Input)
	c.Output = getEnv("ANONYMIZER_OUTPUT", c.Output)
	if v := getEnv("ANONYMIZER_EXTENSIONS", ""); v != "" {
		c.Extensions = SplitList(v)
	}
	c.WriteJSON = getEnvAsBool("ANONYMIZER_WRITE_JSON", c.WriteJSON)
	c.Workers = getEnvAsInt("ANONYMIZER_WORKERS", c.Workers)
	c.FailFast = getEnvAsBool("ANONYMIZER_FAIL_FAST", c.FailFast)
	c.WeightsDir = getEnv("ANONYMIZER_WEIGHTS_DIR", c.WeightsDir)
	c.LogDir = getEnv("ANONYMIZER_LOG_DIR", c.LogDir)
}

// Validate checks settings that do not depend on detectors being built.
func (c *Config) Validate() error {
	switch {
	case c.Input == "":
		return fmt.Errorf("input directory is required")
	case c.Output == "":
		return fmt.Errorf("output directory is required")
	case len(c.Extensions) == 0:
		return fmt.Errorf("at least one file extension is required")
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	case c.JPEGQuality < 0 || c.JPEGQuality > 100:
		return fmt.Errorf("jpeg quality must be in [0,100], got %d", c.JPEGQuality)
	}
	for kind, t := range c.Thresholds {
		if t < 0 || t > 1 {
			return fmt.Errorf("threshold for %s must be in [0,1], got %v", kind, t)
		}
	}
	return nil
}

// DetectorParams returns the params for kind with the global weights settings
// filled in where the detector does not override them.
func (c *Config) DetectorParams(kind string) detection.Params {
	p := c.Detectors[kind].Params
	if p.WeightsDir == "" {
		p.WeightsDir = c.WeightsDir
	}
	if p.WeightsVersion == "" {
		p.WeightsVersion = c.WeightsVersion
	}
	return p
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
