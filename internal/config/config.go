// Package config loads decodecheck.yaml.
//
// Every field is optional. Values missing from the file keep their
// defaults; command-line flags that were set explicitly override both.
// Relative paths in the file are taken relative to the file's directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/decodecheck/internal/decode"
	"github.com/roach88/decodecheck/internal/harness"
	"github.com/roach88/decodecheck/internal/reference"
)

// Defaults for paths that have no home elsewhere.
const (
	DefaultPath    = "decodecheck.yaml"
	DefaultCatalog = "decodecheck.json"
	DefaultSamples = "test"
	DefaultOut     = "."
)

// ProgressSteps are the accepted progress percentages. Zero disables
// progress output.
var ProgressSteps = []int{0, 5, 10, 20, 25, 33}

// Config is the in-memory form of decodecheck.yaml.
type Config struct {
	Tool        string        `yaml:"tool,omitempty"`
	Archiver    string        `yaml:"archiver,omitempty"`
	Samples     string        `yaml:"samples,omitempty"`
	Catalogs    []string      `yaml:"catalogs,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	Archive     string        `yaml:"archive,omitempty"`
	Out         string        `yaml:"out,omitempty"`
	DB          string        `yaml:"db,omitempty"`
	Progress    int           `yaml:"progress,omitempty"`
	Schema      bool          `yaml:"schema,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Tool:        decode.DefaultTool,
		Archiver:    reference.DefaultArchiver,
		Samples:     DefaultSamples,
		Catalogs:    []string{DefaultCatalog},
		Concurrency: harness.DefaultConcurrency,
		Timeout:     harness.DefaultTimeout,
		Archive:     string(reference.KindZstd),
		Out:         DefaultOut,
	}
}

// Load reads the file at path over the defaults. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields the defaults
// unless the caller asked for that file explicitly.
func LoadOptional(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if _, err := reference.ParseKind(c.Archive); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(ProgressSteps, c.Progress) {
		errs = append(errs, fmt.Errorf("progress must be one of %v, got %d", ProgressSteps, c.Progress))
	}
	if len(c.Catalogs) == 0 {
		errs = append(errs, errors.New("at least one catalog is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) resolvePaths(base string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Samples = rel(c.Samples)
	c.Out = rel(c.Out)
	c.DB = rel(c.DB)
	for i, p := range c.Catalogs {
		c.Catalogs[i] = rel(p)
	}
}
