package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/creasty/defaults"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "saxpush"
	defaultConfig = ".config"

	maxChunkSize = 64 << 20
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
}

var (
	modes   = []string{"xml", "html"}
	formats = []string{"plain", "json", "bson", "markdown"}
	colors  = []string{"auto", "always", "never"}
)

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Mode        string        `yaml:"mode" default:"xml"`
	Recover     bool          `yaml:"recover" default:"true"`
	ChunkSize   string        `yaml:"chunk_size" default:"4KiB"`
	Format      string        `yaml:"format" default:"plain"`
	Timeout     time.Duration `yaml:"timeout" default:"60s"`
	MetricsFile string        `yaml:"metrics_file"`
	Render      Render        `yaml:"render"`
}

// Render holds terminal rendering settings.
type Render struct {
	Wrap  int    `yaml:"wrap" default:"120"`
	Color string `yaml:"color" default:"auto"`
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// newDefaultConfig creates a configuration with every default applied.
func newDefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return newDefaultConfig()
}

// Dir returns the saxpush configuration directory based on the XDG_CONFIG_HOME environment variable.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(home, defaultConfig)
	}

	return filepath.Join(configHome, configDirName), nil
}

// tryLoadConfig attempts to load a configuration file from the specified path.
func tryLoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := newDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadConfig loads the configuration from the user's config directory, with a timeout.
func LoadConfig(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := make(chan configResult, 1)

	go func() {
		cfg, err := loadConfigFiles(ctx)
		result <- configResult{config: cfg, err: err}
	}()

	done := ctx.Done()
	select {
	case <-done:
		return nil, ctx.Err()
	case r := <-result:
		if r.err != nil {
			return nil, r.err
		}
		if err := r.config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return r.config, nil
	}
}

// loadConfigFiles loads the first configuration file found in the config directory.
func loadConfigFiles(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before loading config: %w", err)
	}

	configDir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	// Return default config early if directory doesn't exist
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return newDefaultConfig(), nil
	}

	for _, filename := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := tryLoadConfig(filepath.Join(configDir, filename))
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}

	return newDefaultConfig(), nil
}

// Validate checks values that YAML alone cannot constrain.
func (c *Config) Validate() error {
	if !slices.Contains(modes, c.Mode) {
		return fmt.Errorf("unknown mode %q, want one of %v", c.Mode, modes)
	}
	if !slices.Contains(formats, c.Format) {
		return fmt.Errorf("unknown format %q, want one of %v", c.Format, formats)
	}
	if !slices.Contains(colors, c.Render.Color) {
		return fmt.Errorf("unknown color mode %q, want one of %v", c.Render.Color, colors)
	}
	if _, err := c.ChunkBytes(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", c.Timeout)
	}
	return nil
}

// HTML reports whether documents are parsed as HTML.
func (c *Config) HTML() bool {
	return c.Mode == "html"
}

// ChunkBytes returns the chunk size in bytes. Sizes accept units such as
// "4KiB" or "1 MB".
func (c *Config) ChunkBytes() (int, error) {
	n, err := humanize.ParseBytes(c.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("failed to parse chunk size %q: %w", c.ChunkSize, err)
	}
	if n == 0 || n > maxChunkSize {
		return 0, fmt.Errorf("chunk size %s out of range (1 B to %s)", humanize.IBytes(n), humanize.IBytes(maxChunkSize))
	}
	return int(n), nil
}
