// Package config loads harness settings for an example directory.
//
// Configuration is a small optional YAML file. Every field has a default
// matching the conventional example-directory layout: baselines in a sibling
// ExpectedOutput directory, the comparison utility in a sibling Tools
// directory, examples filtered by extension. Unknown fields are rejected so
// typos fail loudly instead of silently falling back to defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values applied for any field left empty.
const (
	DefaultExtension = ".py"
	DefaultExpected  = "ExpectedOutput"
	DefaultToolsDir  = "../Tools"
	DefaultTool      = "numdiff"
	DefaultSentinel  = "market.py"
	DefaultFinalize  = "cleanup.py"
)

// FileName is the conventional config file name inside an examples directory.
const FileName = "exrun.yaml"

// Config holds the harness settings for one example directory.
type Config struct {
	// Extension filters discovery (e.g. ".py"). Must start with a dot.
	Extension string `yaml:"extension,omitempty"`

	// Expected is the baseline directory, resolved relative to the
	// examples directory. One baseline per case, named by stripping
	// the case's extension.
	Expected string `yaml:"expected,omitempty"`

	// Tools is the directory holding the comparison utility,
	// resolved relative to the examples directory.
	Tools string `yaml:"tools,omitempty"`

	// Tool is the comparison utility name inside Tools.
	Tool string `yaml:"tool,omitempty"`

	// Sentinel names the case that is executed but never compared.
	Sentinel string `yaml:"sentinel,omitempty"`

	// Finalize names the finalization case. It is excluded from
	// discovery and always runs once after the main sequence.
	Finalize string `yaml:"finalize,omitempty"`

	// Interpreter is an explicit interpreter path. When empty the
	// runner resolves one from the environment and PATH.
	Interpreter string `yaml:"interpreter,omitempty"`
}

// Default returns a Config with every field at its default.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads the config file for an examples directory.
//
// A missing file is not an error: defaults are returned. A present but
// malformed file is an error, as is any unknown field.
func Load(examplesDir string) (Config, error) {
	return LoadFile(filepath.Join(examplesDir, FileName))
}

// LoadFile reads and parses a specific config file path.
// Defaults are applied to any field left empty.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	// Strict decoding catches typos like "sentinal:".
	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.Expected == "" {
		c.Expected = DefaultExpected
	}
	if c.Tools == "" {
		c.Tools = DefaultToolsDir
	}
	if c.Tool == "" {
		c.Tool = DefaultTool
	}
	if c.Sentinel == "" {
		c.Sentinel = DefaultSentinel
	}
	if c.Finalize == "" {
		c.Finalize = DefaultFinalize
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("extension must start with a dot: %q", c.Extension)
	}
	if strings.ContainsRune(c.Tool, os.PathSeparator) {
		return fmt.Errorf("tool must be a bare name inside the tools directory: %q", c.Tool)
	}
	if c.Sentinel == c.Finalize {
		return fmt.Errorf("sentinel and finalize must name different cases: %q", c.Sentinel)
	}
	return nil
}

// ExpectedDir resolves the baseline directory against the examples directory.
func (c Config) ExpectedDir(examplesDir string) string {
	return resolve(examplesDir, c.Expected)
}

// ToolPath resolves the full path of the comparison utility.
func (c Config) ToolPath(examplesDir string) string {
	return filepath.Join(resolve(examplesDir, c.Tools), c.Tool)
}

// BaselinePath returns the baseline for a case name: the expected directory
// plus the case name with its extension stripped.
func (c Config) BaselinePath(examplesDir, caseName string) string {
	base := strings.TrimSuffix(caseName, filepath.Ext(caseName))
	return filepath.Join(c.ExpectedDir(examplesDir), base)
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
