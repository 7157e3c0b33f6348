// sigil/sigil_types.go
// Contains core type definitions used throughout the sigil package.
package sigil

import (
	"errors"
	"fmt"
	stdslog "log/slog"
	"time"
)

// =============================================================================
// Configuration Types & Constants
// =============================================================================

const (
	defaultLogLevel            = "info"
	defaultMemoryCacheTTLSecs  = 300 // TTL for cached parsed snapshots (5 minutes).
	defaultMemoryCacheMaxBytes = 64 << 20
	defaultWatchDebounceMs     = 500
	defaultConfigFileName      = "config.json"
	configDirName              = "sigil"
	indexCacheSchemaVersion    = 1 // Bumped whenever the persisted symbol format changes.

	// sourceFileExt is the extension of files sigil indexes and serves.
	sourceFileExt = ".rs"
)

// Config holds the active configuration for the signature-help service.
type Config struct {
	LogLevel              string        `json:"log_level"`                // Log level (debug, info, warn, error).
	MemoryCacheTTLSeconds int           `json:"memory_cache_ttl_seconds"` // TTL for cached parsed snapshots.
	MemoryCacheTTL        time.Duration `json:"-"`                        // Derived duration, not from file.
	MemoryCacheMaxBytes   int64         `json:"memory_cache_max_bytes"`   // Cost ceiling for the snapshot cache.
	IndexCachePath        string        `json:"index_cache_path"`         // bbolt file for the symbol index cache; empty disables it.
	WatchDebounceMs       int           `json:"watch_debounce_ms"`        // Debounce for filesystem watch events.
	WatchDebounce         time.Duration `json:"-"`                        // Derived duration, not from file.
}

// FileConfig represents the structure of the JSON config file for unmarshalling.
// Uses pointers to distinguish between unset fields and zero-value fields.
type FileConfig struct {
	LogLevel              *string `json:"log_level"`
	MemoryCacheTTLSeconds *int    `json:"memory_cache_ttl_seconds"`
	MemoryCacheMaxBytes   *int64  `json:"memory_cache_max_bytes"`
	IndexCachePath        *string `json:"index_cache_path"`
	WatchDebounceMs       *int    `json:"watch_debounce_ms"`
}

// getDefaultConfig returns a new instance of the default configuration.
func getDefaultConfig() Config {
	return Config{
		LogLevel:              defaultLogLevel,
		MemoryCacheTTLSeconds: defaultMemoryCacheTTLSecs,
		MemoryCacheTTL:        time.Duration(defaultMemoryCacheTTLSecs) * time.Second,
		MemoryCacheMaxBytes:   defaultMemoryCacheMaxBytes,
		WatchDebounceMs:       defaultWatchDebounceMs,
		WatchDebounce:         time.Duration(defaultWatchDebounceMs) * time.Millisecond,
	}
}

// Validate checks if configuration values are valid, applying defaults for some fields.
func (c *Config) Validate(logger *stdslog.Logger) error {
	var validationErrors []error
	if logger == nil {
		logger = stdslog.Default()
	}
	tempDefault := getDefaultConfig()

	if c.LogLevel == "" {
		logger.Warn("Config validation: log_level is empty, applying default.", "default", defaultLogLevel)
		c.LogLevel = defaultLogLevel
	} else if _, err := ParseLogLevel(c.LogLevel); err != nil {
		logger.Warn("Config validation: Invalid log_level found, applying default.", "configured_value", c.LogLevel, "default", defaultLogLevel, "error", err)
		validationErrors = append(validationErrors, fmt.Errorf("invalid log_level '%s': %w", c.LogLevel, err))
		c.LogLevel = defaultLogLevel
	}
	if c.MemoryCacheTTLSeconds <= 0 {
		logger.Warn("Config validation: memory_cache_ttl_seconds is not positive, applying default.", "configured_value", c.MemoryCacheTTLSeconds, "default", tempDefault.MemoryCacheTTLSeconds)
		c.MemoryCacheTTLSeconds = tempDefault.MemoryCacheTTLSeconds
	}
	if c.MemoryCacheMaxBytes <= 0 {
		logger.Warn("Config validation: memory_cache_max_bytes is not positive, applying default.", "configured_value", c.MemoryCacheMaxBytes, "default", tempDefault.MemoryCacheMaxBytes)
		c.MemoryCacheMaxBytes = tempDefault.MemoryCacheMaxBytes
	}
	if c.WatchDebounceMs <= 0 {
		logger.Warn("Config validation: watch_debounce_ms is not positive, applying default.", "configured_value", c.WatchDebounceMs, "default", tempDefault.WatchDebounceMs)
		c.WatchDebounceMs = tempDefault.WatchDebounceMs
	}

	// Derive durations after validation/defaulting.
	c.MemoryCacheTTL = time.Duration(c.MemoryCacheTTLSeconds) * time.Second
	c.WatchDebounce = time.Duration(c.WatchDebounceMs) * time.Millisecond

	if len(validationErrors) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(validationErrors...))
	}
	return nil
}

// =============================================================================
// Query Types
// =============================================================================

// FileID identifies one file in the workspace (an absolute path or a
// client-supplied document identity).
type FileID string

// FilePosition is the input of the signature-help query: a file plus a
// byte offset into that file's text.
type FilePosition struct {
	File   FileID
	Offset int
}

// CallInfo is the result of the signature-help query.
type CallInfo struct {
	// Label is the declaration text with the body stripped.
	Label string `json:"label"`
	// Doc is the normalized documentation, empty when the definition
	// carries none.
	Doc string `json:"doc,omitempty"`
	// Parameters are the rendered parameter entries; a receiver parameter,
	// when present, occupies index 0.
	Parameters []string `json:"parameters"`
	// ActiveParameter indexes into Parameters, nil when no slot is active.
	ActiveParameter *int `json:"active_parameter,omitempty"`
}

// Symbol is one named definition produced by the workspace index. The index
// is name-based and non-type-aware; consumers filter on Kind themselves.
type Symbol struct {
	Name string
	Kind SyntaxKind
	File FileID
	Ptr  NodePtr
}

// =============================================================================
// Diagnostics
// =============================================================================

type DiagnosticSeverity int

const (
	SeverityError   DiagnosticSeverity = 1
	SeverityWarning DiagnosticSeverity = 2
	SeverityInfo    DiagnosticSeverity = 3
	SeverityHint    DiagnosticSeverity = 4
)

// Diagnostic is a parse-level finding, with a byte range into the file it
// was produced for. The LSP layer converts ranges to client positions.
type Diagnostic struct {
	Range    TextRange
	Severity DiagnosticSeverity
	Source   string // e.g., "sigil-parser"
	Message  string
}
