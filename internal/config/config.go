// Package config loads project settings from patterngraph.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfig holds project-level settings loaded from patterngraph.yml.
type ProjectConfig struct {
	Service ServiceConfig `yaml:"service,omitempty"`
	Run     RunConfig     `yaml:"run,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Web     WebConfig     `yaml:"web,omitempty"`
}

// ServiceConfig locates the pattern execution service.
type ServiceConfig struct {
	URL     string            `yaml:"url,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// RunConfig controls graph runs.
type RunConfig struct {
	// Streaming is a pointer so that an explicit false survives Defaults.
	Streaming    *bool         `yaml:"streaming,omitempty"`
	TickInterval time.Duration `yaml:"tick_interval,omitempty"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// StoreConfig selects where designs are kept.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // memory, sqlite or kuzu
	Path   string `yaml:"path,omitempty"`
}

// WebConfig configures the HTTP API.
type WebConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default values applied by Defaults.
const (
	DefaultServiceURL     = "http://localhost:8000"
	DefaultServiceTimeout = 2 * time.Minute
	DefaultTickInterval   = 100 * time.Millisecond
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultStoreDriver    = "memory"
	DefaultWebAddr        = ":8080"
)

// Load attempts to read patterngraph.yml or patterngraph.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"patterngraph.yml", "patterngraph.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg ProjectConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		return &cfg, nil
	}
	return &ProjectConfig{}, nil
}

// Defaults fills every unset field with its default value.
func (c *ProjectConfig) Defaults() {
	if c.Service.URL == "" {
		c.Service.URL = DefaultServiceURL
	}
	if c.Service.Timeout <= 0 {
		c.Service.Timeout = DefaultServiceTimeout
	}
	if c.Run.Streaming == nil {
		on := true
		c.Run.Streaming = &on
	}
	if c.Run.TickInterval <= 0 {
		c.Run.TickInterval = DefaultTickInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Web.Addr == "" {
		c.Web.Addr = DefaultWebAddr
	}
}

// Streaming reports the effective streaming setting.
func (c *ProjectConfig) Streaming() bool {
	return c.Run.Streaming == nil || *c.Run.Streaming
}
