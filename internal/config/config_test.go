package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Mode != ModeLocal {
		t.Fatalf("mode = %q, want local", cfg.Storage.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Ranks) == 0 || cfg.Ranks[0] != "junior" {
		t.Fatalf("ranks = %v", cfg.Ranks)
	}
	if cfg.RankIndex("lead") != 3 {
		t.Fatalf("RankIndex(lead) = %d", cfg.RankIndex("lead"))
	}
	if cfg.RankIndex("wizard") != -1 {
		t.Fatalf("RankIndex(wizard) = %d", cfg.RankIndex("wizard"))
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Mode != ModeLocal {
		t.Fatalf("mode = %q", cfg.Storage.Mode)
	}
}

func TestWriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Storage.Mode = ModeRemote
	cfg.Storage.Remote.BaseURL = "http://localhost:8080"
	cfg.Theme = "dark"
	if err := cfg.Write(dir); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Storage.Mode != ModeRemote {
		t.Fatalf("mode = %q", loaded.Storage.Mode)
	}
	if loaded.Storage.Remote.BaseURL != "http://localhost:8080" {
		t.Fatalf("base url = %q", loaded.Storage.Remote.BaseURL)
	}
	if loaded.Theme != "dark" {
		t.Fatalf("theme = %q", loaded.Theme)
	}
}

func TestFromYAMLMergesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("theme: dark\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Theme != "dark" {
		t.Fatalf("theme = %q", cfg.Theme)
	}
	if cfg.Storage.Mode != ModeLocal {
		t.Fatalf("mode = %q, defaults not merged", cfg.Storage.Mode)
	}
	if len(cfg.Ranks) != 4 {
		t.Fatalf("ranks = %v, defaults not merged", cfg.Ranks)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default ok", func(c *Config) {}, false},
		{"remote with url", func(c *Config) {
			c.Storage.Mode = ModeRemote
			c.Storage.Remote.BaseURL = "http://h:1"
		}, false},
		{"bad mode", func(c *Config) { c.Storage.Mode = "cloud" }, true},
		{"remote without url", func(c *Config) { c.Storage.Mode = ModeRemote }, true},
		{"no ranks", func(c *Config) { c.Ranks = nil }, true},
		{"empty rank", func(c *Config) { c.Ranks = []string{"junior", ""} }, true},
		{"duplicate rank", func(c *Config) { c.Ranks = []string{"junior", "junior"} }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWriteRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Storage.Mode = "cloud"
	if err := cfg.Write(dir); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := os.Stat(filepath.Join(dir, "assetline.yml")); !os.IsNotExist(err) {
		t.Fatal("invalid config was written")
	}
}
