package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Storage modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config models assetline.yml.
type Config struct {
	Storage struct {
		Mode   string `yaml:"mode"`
		Remote struct {
			BaseURL string `yaml:"base_url"`
			Token   string `yaml:"token"`
		} `yaml:"remote"`
	} `yaml:"storage"`
	Ranks      []string `yaml:"ranks"`
	Categories []string `yaml:"categories"`
	Locations  []string `yaml:"locations"`
	Theme      string   `yaml:"theme"`
	Language   string   `yaml:"language"`
}

// Load reads and validates config from the workspace, falling back to
// defaults when no file exists.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case ModeLocal:
	case ModeRemote:
		if c.Storage.Remote.BaseURL == "" {
			return fmt.Errorf("storage.remote.base_url is required for remote mode")
		}
	default:
		return fmt.Errorf("storage.mode must be %q or %q", ModeLocal, ModeRemote)
	}
	if len(c.Ranks) == 0 {
		return fmt.Errorf("ranks must list at least one tier")
	}
	seen := map[string]bool{}
	for _, r := range c.Ranks {
		if r == "" {
			return fmt.Errorf("ranks contains an empty tier")
		}
		if seen[r] {
			return fmt.Errorf("rank %s listed twice", r)
		}
		seen[r] = true
	}
	return nil
}

// RankIndex returns the position of rank in the ordered tier list, or -1.
func (c *Config) RankIndex(rank string) int {
	for i, r := range c.Ranks {
		if r == rank {
			return i
		}
	}
	return -1
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "assetline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Write saves the config to the workspace.
func (c *Config) Write(workspace string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}

const defaultTemplate = `storage:
  mode: local
  remote:
    base_url: ""
    token: ""

ranks:
  - junior
  - intermediate
  - senior
  - lead

categories:
  - Electronics
  - Furniture
  - Vehicles
  - Machinery

locations:
  - Head Office
  - Warehouse A
  - Warehouse B
  - Workshop

theme: light
language: en
`
