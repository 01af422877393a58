// Package config loads engine configuration from YAML and serves it as
// immutable snapshots. Validation happens at load time; a bad file never
// replaces a good running configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/ctxgate/ctxgate/compaction"
	"github.com/ctxgate/ctxgate/masking"
)

// ErrInvalidConfig indicates a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// File is the on-disk configuration shape.
type File struct {
	// DefaultModel is the model assumed when a request names none.
	DefaultModel string `yaml:"default_model"`

	// AutoCompactionDefault is the opt-in state for sessions that never
	// set their own flag.
	AutoCompactionDefault bool `yaml:"auto_compaction_default"`

	Masking    masking.Policy    `yaml:"masking"`
	Compaction compaction.Policy `yaml:"compaction"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		DefaultModel: "claude-sonnet-4",
		Masking:      masking.DefaultPolicy(),
		Compaction:   compaction.DefaultPolicy(),
	}
}

// ApplyDefaults fills in zero values with defaults.
func (f *File) ApplyDefaults() {
	if f.DefaultModel == "" {
		f.DefaultModel = "claude-sonnet-4"
	}
	f.Masking.ApplyDefaults()
	f.Compaction.ApplyDefaults()
}

// Validate checks the whole configuration and returns ErrInvalidConfig
// wrapping the first problem found.
func (f File) Validate() error {
	if err := f.Masking.Validate(); err != nil {
		return fmt.Errorf("%w: masking: %v", ErrInvalidConfig, err)
	}
	if err := f.Compaction.Validate(); err != nil {
		return fmt.Errorf("%w: compaction: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Parse decodes, defaults, and validates YAML configuration bytes.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Load reads and parses a configuration file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Provider serves configuration snapshots and swaps them atomically on
// reload. Requests read one snapshot and see a consistent policy pair even
// while a reload lands.
type Provider struct {
	current atomic.Pointer[File]
	path    string
}

// NewProvider creates a provider serving the given configuration.
func NewProvider(f File) *Provider {
	p := &Provider{}
	p.current.Store(&f)
	return p
}

// NewProviderFromFile loads path and remembers it for Reload.
func NewProviderFromFile(path string) (*Provider, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	p := NewProvider(f)
	p.path = path
	return p, nil
}

// Snapshot returns the current configuration by value. The caller's copy
// never changes, even across a concurrent reload.
func (p *Provider) Snapshot() File {
	return *p.current.Load()
}

// Set validates and installs a new configuration.
func (p *Provider) Set(f File) error {
	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return err
	}
	p.current.Store(&f)
	return nil
}

// Reload re-reads the file the provider was created from. On any error the
// running configuration stays in place.
func (p *Provider) Reload() error {
	if p.path == "" {
		return fmt.Errorf("%w: provider has no backing file", ErrInvalidConfig)
	}
	f, err := Load(p.path)
	if err != nil {
		return err
	}
	p.current.Store(&f)
	return nil
}
