// Package config loads the optional per-project .quarry.yml file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up at the project root.
const ConfigFileName = ".quarry.yml"

// Config holds project-level index settings. Every field is optional; zero
// values are replaced by defaults.
type Config struct {
	// IndexDir overrides the directory holding the index database,
	// relative to the project root unless absolute.
	IndexDir string `yaml:"index_dir"`
	// Ignore lists extra gitignore-style patterns skipped during walks.
	Ignore []string `yaml:"ignore"`
	// Workers caps the parallel extraction pool. 0 means NumCPU.
	Workers int `yaml:"workers"`
	// MaxFileSize is the line-counting ceiling in bytes. Files above it are
	// recorded with a zero line count.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		IndexDir:    ".quarry",
		Workers:     runtime.NumCPU(),
		MaxFileSize: 1 << 20,
	}
}

// Load reads .quarry.yml from root, returning defaults if the file does not
// exist. A present but unparseable file is an error: silently falling back
// would mask typos in ignore patterns.
func Load(root string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Join(root, ConfigFileName))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	if fileCfg.IndexDir != "" {
		cfg.IndexDir = fileCfg.IndexDir
	}
	if len(fileCfg.Ignore) > 0 {
		cfg.Ignore = fileCfg.Ignore
	}
	if fileCfg.Workers > 0 {
		cfg.Workers = fileCfg.Workers
	}
	if fileCfg.MaxFileSize > 0 {
		cfg.MaxFileSize = fileCfg.MaxFileSize
	}
	return cfg, nil
}

// IndexPath returns the absolute path of the index database for a project.
func (c Config) IndexPath(root string) string {
	dir := c.IndexDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Join(dir, "index.db")
}
