// Package config loads the backend descriptor a process uses to open a
// norm.Store, the same directory-walking YAML convention the teacher
// repo's ddb CLI uses for its UI config.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/acksell/norm"
	"github.com/acksell/norm/memstore"
	"github.com/acksell/norm/sqlstore"
	"gopkg.in/yaml.v3"
)

// BackendConfig is the on-disk descriptor naming which backend to open
// and its backend-specific settings. Both the name and the settings
// dimension are opaque to norm itself (§6); this package is what turns
// one concrete YAML shape into the (name, cfg) pair Open expects.
type BackendConfig struct {
	Backend string       `yaml:"backend"`
	Memory  MemoryConfig `yaml:"memory"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

type MemoryConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// defaultFileName is the descriptor norm searches for, analogous to the
// teacher CLI's ddb.ui.yaml.
const defaultFileName = "norm.yaml"

// Load searches for norm.yaml starting from the current directory and
// walking up to the filesystem root. Returns a default config (memory
// backend, in-memory mode) if nothing is found.
func Load() (BackendConfig, error) {
	path := findConfigFile(defaultFileName)
	if path == "" {
		return BackendConfig{Backend: "memory", Memory: MemoryConfig{InMemory: true}}, nil
	}
	return LoadFile(path)
}

// LoadFile reads and parses a specific descriptor file.
func LoadFile(path string) (BackendConfig, error) {
	var cfg BackendConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.Backend == "" {
		return cfg, fmt.Errorf("config: %s: backend field is required", path)
	}
	return cfg, nil
}

func findConfigFile(name string) string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Open opens a norm.Store from a loaded BackendConfig, dispatching to the
// registered backend named by cfg.Backend.
func Open(ctx context.Context, cfg BackendConfig) (*norm.Store, error) {
	switch cfg.Backend {
	case "memory":
		return norm.Open(ctx, "memory", memstore.StoreOptions{
			Path:     cfg.Memory.Path,
			InMemory: cfg.Memory.InMemory || cfg.Memory.Path == "",
		})
	case "sqlite":
		return norm.Open(ctx, "sqlite", sqlstore.Options{Path: cfg.SQLite.Path})
	default:
		return nil, fmt.Errorf("config: unknown backend %q", cfg.Backend)
	}
}
