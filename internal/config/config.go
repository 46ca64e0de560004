package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults match the documented plugin contract.
const (
	DefaultPort     = 22222
	DefaultWarning  = 0
	DefaultCritical = 10
	DefaultTimeout  = 5 * time.Second
)

// Config carries everything one check run needs.
type Config struct {
	Host     string
	Port     int
	Warning  int
	Critical int
	Verbose  bool
	Timeout  time.Duration
	CacheDir string
	Debug    bool
}

// Default returns a Config with the documented defaults and no host.
func Default() Config {
	return Config{
		Port:     DefaultPort,
		Warning:  DefaultWarning,
		Critical: DefaultCritical,
		Timeout:  DefaultTimeout,
		CacheDir: os.TempDir(),
	}
}

// File is the YAML defaults-file schema. Every field is optional and
// explicit command-line flags take precedence over file values. Warning
// and critical are pointers so a file can set either to zero.
type File struct {
	Port      int    `yaml:"port"`
	Warning   *int   `yaml:"warning"`
	Critical  *int   `yaml:"critical"`
	TimeoutMS int    `yaml:"timeout_ms"`
	CacheDir  string `yaml:"cache_dir"`
}

// ApplyFile overlays the YAML defaults file at path onto c.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.Port != 0 {
		c.Port = f.Port
	}
	if f.Warning != nil {
		c.Warning = *f.Warning
	}
	if f.Critical != nil {
		c.Critical = *f.Critical
	}
	if f.TimeoutMS > 0 {
		c.Timeout = time.Duration(f.TimeoutMS) * time.Millisecond
	}
	if f.CacheDir != "" {
		c.CacheDir = f.CacheDir
	}
	return nil
}

// Validate checks the assembled configuration before any network or file
// work starts.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Warning < 0 {
		return errors.New("warning threshold must not be negative")
	}
	if c.Critical < 0 {
		return errors.New("critical threshold must not be negative")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}
