// sigil/sigil_test.go
package sigil

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadConfig tests configuration loading and default file writing.
func TestLoadConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tempHome, ".config"))
	t.Setenv("HOME", tempHome)
	t.Setenv("USERPROFILE", tempHome)
	fakeConfigDir := filepath.Join(tempHome, ".config", configDirName)
	fakeConfigFile := filepath.Join(fakeConfigDir, defaultConfigFileName)

	writeConfigFile := func(t *testing.T, data string) {
		t.Helper()
		if err := os.MkdirAll(fakeConfigDir, 0o755); err != nil {
			t.Fatalf("creating config dir: %v", err)
		}
		if err := os.WriteFile(fakeConfigFile, []byte(data), 0o644); err != nil {
			t.Fatalf("writing config file: %v", err)
		}
	}

	t.Run("no config file writes default and returns defaults", func(t *testing.T) {
		os.RemoveAll(fakeConfigDir)

		cfg, err := LoadConfig(testLogger())
		if err != nil {
			t.Fatalf("LoadConfig() error: %v", err)
		}
		want := getDefaultConfig()
		if cfg.LogLevel != want.LogLevel || cfg.MemoryCacheTTLSeconds != want.MemoryCacheTTLSeconds ||
			cfg.MemoryCacheMaxBytes != want.MemoryCacheMaxBytes || cfg.WatchDebounceMs != want.WatchDebounceMs {
			t.Errorf("LoadConfig() = %+v, want defaults %+v", cfg, want)
		}
		if _, statErr := os.Stat(fakeConfigFile); statErr != nil {
			t.Errorf("default config file was not written: %v", statErr)
		}
	})

	t.Run("partial config merges with defaults", func(t *testing.T) {
		writeConfigFile(t, `{"log_level": "debug", "watch_debounce_ms": 250}`)

		cfg, err := LoadConfig(testLogger())
		if err != nil {
			t.Fatalf("LoadConfig() error: %v", err)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("log level = %q, want debug", cfg.LogLevel)
		}
		if cfg.WatchDebounceMs != 250 || cfg.WatchDebounce != 250*time.Millisecond {
			t.Errorf("watch debounce = %d/%v, want 250/250ms", cfg.WatchDebounceMs, cfg.WatchDebounce)
		}
		if def := getDefaultConfig(); cfg.MemoryCacheTTLSeconds != def.MemoryCacheTTLSeconds {
			t.Errorf("ttl = %d, want untouched default %d", cfg.MemoryCacheTTLSeconds, def.MemoryCacheTTLSeconds)
		}
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		writeConfigFile(t, `{"unknown_field": 123, "log_level": "warn"}`)

		cfg, err := LoadConfig(testLogger())
		if err != nil {
			t.Fatalf("LoadConfig() error: %v", err)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("log level = %q, want warn", cfg.LogLevel)
		}
	})

	t.Run("invalid JSON falls back to defaults and rewrites the file", func(t *testing.T) {
		writeConfigFile(t, `{"log_level": `)

		cfg, err := LoadConfig(testLogger())
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("error = %v, want ErrConfig", err)
		}
		if def := getDefaultConfig(); cfg.LogLevel != def.LogLevel {
			t.Errorf("log level = %q, want default %q", cfg.LogLevel, def.LogLevel)
		}
		data, readErr := os.ReadFile(fakeConfigFile)
		if readErr != nil {
			t.Fatalf("reading rewritten config: %v", readErr)
		}
		var rewritten FileConfig
		if jsonErr := json.Unmarshal(data, &rewritten); jsonErr != nil {
			t.Errorf("rewritten config is not valid JSON: %v", jsonErr)
		}
	})

	t.Run("non positive values are defaulted without error", func(t *testing.T) {
		writeConfigFile(t, `{"memory_cache_ttl_seconds": -5}`)

		cfg, err := LoadConfig(testLogger())
		if err != nil {
			t.Fatalf("LoadConfig() error: %v", err)
		}
		def := getDefaultConfig()
		if cfg.MemoryCacheTTLSeconds != def.MemoryCacheTTLSeconds {
			t.Errorf("ttl = %d, want default %d", cfg.MemoryCacheTTLSeconds, def.MemoryCacheTTLSeconds)
		}
		if cfg.MemoryCacheTTL != def.MemoryCacheTTL {
			t.Errorf("derived ttl = %v, want %v", cfg.MemoryCacheTTL, def.MemoryCacheTTL)
		}
	})

	t.Run("invalid log level reports ErrConfig and uses defaults", func(t *testing.T) {
		writeConfigFile(t, `{"log_level": "loud"}`)

		cfg, err := LoadConfig(testLogger())
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("error = %v, want ErrConfig", err)
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error = %v, want it to wrap ErrInvalidConfig", err)
		}
		if cfg.LogLevel != defaultLogLevel {
			t.Errorf("log level = %q, want default %q", cfg.LogLevel, defaultLogLevel)
		}
	})
}

func TestLoadAndMergeConfig(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		cfg := getDefaultConfig()
		loaded, err := LoadAndMergeConfig(filepath.Join(t.TempDir(), "nope.json"), &cfg, testLogger())
		if err != nil {
			t.Fatalf("LoadAndMergeConfig() error: %v", err)
		}
		if loaded {
			t.Error("loaded = true for a missing file, want false")
		}
	})

	t.Run("only set fields override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{"index_cache_path": "/tmp/idx.db"}`), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := getDefaultConfig()
		cfg.LogLevel = "debug"
		loaded, err := LoadAndMergeConfig(path, &cfg, testLogger())
		if err != nil || !loaded {
			t.Fatalf("LoadAndMergeConfig() = %v, %v", loaded, err)
		}
		if cfg.IndexCachePath != "/tmp/idx.db" {
			t.Errorf("index cache path = %q, want /tmp/idx.db", cfg.IndexCachePath)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("log level = %q, want the pre-merge value kept", cfg.LogLevel)
		}
	})

	t.Run("parse error is reported", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{broken`), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := getDefaultConfig()
		_, err := LoadAndMergeConfig(path, &cfg, testLogger())
		if err == nil {
			t.Fatal("expected a parse error, got nil")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("empty log level is defaulted silently", func(t *testing.T) {
		cfg := getDefaultConfig()
		cfg.LogLevel = ""
		if err := cfg.Validate(testLogger()); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if cfg.LogLevel != defaultLogLevel {
			t.Errorf("log level = %q, want %q", cfg.LogLevel, defaultLogLevel)
		}
	})

	t.Run("invalid log level is an error but still defaulted", func(t *testing.T) {
		cfg := getDefaultConfig()
		cfg.LogLevel = "chatty"
		err := cfg.Validate(testLogger())
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("error = %v, want ErrInvalidConfig", err)
		}
		if cfg.LogLevel != defaultLogLevel {
			t.Errorf("log level = %q, want %q", cfg.LogLevel, defaultLogLevel)
		}
	})

	t.Run("durations are derived from validated values", func(t *testing.T) {
		cfg := getDefaultConfig()
		cfg.MemoryCacheTTLSeconds = 7
		cfg.WatchDebounceMs = 40
		if err := cfg.Validate(testLogger()); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if cfg.MemoryCacheTTL != 7*time.Second {
			t.Errorf("ttl = %v, want 7s", cfg.MemoryCacheTTL)
		}
		if cfg.WatchDebounce != 40*time.Millisecond {
			t.Errorf("debounce = %v, want 40ms", cfg.WatchDebounce)
		}
	})
}
