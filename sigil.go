// sigil/sigil.go
// Core entry point: the signature-help engine and configuration loading.
//
// The engine answers one question: given a file and a byte offset, what
// function is being called there and which parameter is the cursor on? The
// answer is computed from syntax alone; there is no type checker behind it.
package sigil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdslog "log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Engine runs signature-help queries against a Source.
type Engine struct {
	source Source
	logger *stdslog.Logger
}

// NewEngine creates an engine over the given source.
func NewEngine(source Source, logger *stdslog.Logger) *Engine {
	if logger == nil {
		logger = stdslog.Default()
	}
	return &Engine{source: source, logger: logger}
}

// SignatureHelp answers the call-info query for a file position.
//
// A nil result with a nil error means "no signature help here": the cursor
// is not inside a call, the callee has no resolvable name, or no function
// definition with that name exists in the workspace. Errors are reserved
// for failing inputs (unknown file, cancelled context), never for absence
// of a result.
func (e *Engine) SignatureHelp(ctx context.Context, pos FilePosition) (*CallInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qLogger := e.logger.With("file", pos.File, "offset", pos.Offset)

	snap, err := e.source.Snapshot(ctx, pos.File)
	if err != nil {
		return nil, err
	}

	call := callNodeAt(snap.Root(), pos.Offset)
	if call == nil {
		qLogger.Debug("No call expression encloses the position")
		return nil, nil
	}
	ref := call.nameRef()
	if ref == nil {
		qLogger.Debug("Call has no resolvable callee name", "call_kind", call.node.Kind())
		return nil, nil
	}
	name := ref.Text()

	candidates, err := e.source.ResolveName(ctx, name, pos.File)
	if err != nil {
		return nil, err
	}

	// Name resolution is syntactic, so several definitions may share the
	// name. The first function-shaped candidate wins; there is no signature
	// matching or backtracking past it.
	for _, sym := range candidates {
		if sym.Kind != KindFnDef {
			continue
		}
		defSnap, err := e.source.Snapshot(ctx, sym.File)
		if err != nil {
			return nil, err
		}
		fnDef := defSnap.Resolve(sym.Ptr)
		if fnDef == nil || fnDef.Kind() != KindFnDef {
			qLogger.Debug("Stale index pointer, skipping candidate", "def_file", sym.File)
			continue
		}
		sig := newSignatureInfo(fnDef)
		if sig == nil {
			continue
		}

		hasSelf := fnSelfParam(fnDef) != nil
		active := activeParameter(len(sig.params), hasSelf, call.argList(), pos.Offset)

		params := sig.params
		if params == nil {
			params = []string{}
		}
		qLogger.Debug("Signature help resolved", "callee", name, "def_file", sym.File, "params", len(params))
		return &CallInfo{
			Label:           sig.label,
			Doc:             sig.doc,
			Parameters:      params,
			ActiveParameter: active,
		}, nil
	}

	qLogger.Debug("No function definition found for callee", "callee", name, "candidates", len(candidates))
	return nil, nil
}

// =============================================================================
// Configuration Loading
// =============================================================================

// LoadConfig loads configuration from standard locations, merges with
// defaults, validates, and attempts to write a default config if needed.
func LoadConfig(logger *stdslog.Logger) (Config, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	cfg := getDefaultConfig()
	var loadedFromFile bool
	var loadErrors []error
	var configParseError error

	primaryPath, secondaryPath, pathErr := GetConfigPaths(logger)
	if pathErr != nil {
		loadErrors = append(loadErrors, pathErr)
		logger.Warn("Could not determine config paths, using defaults", "error", pathErr)
	}

	if primaryPath != "" {
		logger.Debug("Attempting to load config", "path", primaryPath)
		loaded, loadErr := LoadAndMergeConfig(primaryPath, &cfg, logger)
		if loadErr != nil {
			if strings.Contains(loadErr.Error(), "parsing config file JSON") {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", primaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", primaryPath, "error", loadErr)
		} else if loaded {
			loadedFromFile = true
			logger.Info("Loaded config", "path", primaryPath)
		}
	}

	primaryNotFoundOrFailed := !loadedFromFile || configParseError != nil
	if primaryNotFoundOrFailed && secondaryPath != "" && secondaryPath != primaryPath {
		logger.Debug("Attempting to load config from secondary path", "path", secondaryPath)
		loaded, loadErr := LoadAndMergeConfig(secondaryPath, &cfg, logger)
		if loadErr != nil {
			if configParseError == nil && strings.Contains(loadErr.Error(), "parsing config file JSON") {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", secondaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", secondaryPath, "error", loadErr)
		} else if loaded && !loadedFromFile {
			loadedFromFile = true
			logger.Info("Loaded config", "path", secondaryPath)
		}
	}

	loadSucceeded := loadedFromFile && configParseError == nil
	if !loadSucceeded {
		writePath := primaryPath
		if writePath == "" {
			writePath = secondaryPath
		}

		if writePath != "" {
			if configParseError != nil {
				logger.Warn("Existing config file failed to parse. Attempting to write default.", "path", writePath, "error", configParseError)
			} else {
				logger.Info("No valid config file found. Attempting to write default.", "path", writePath)
			}
			if err := WriteDefaultConfig(writePath, getDefaultConfig(), logger); err != nil {
				logger.Warn("Failed to write default config", "path", writePath, "error", err)
				loadErrors = append(loadErrors, fmt.Errorf("writing default config failed: %w", err))
			}
		} else {
			logger.Warn("Cannot determine path to write default config.")
			loadErrors = append(loadErrors, errors.New("cannot determine default config path"))
		}
		cfg = getDefaultConfig()
		logger.Info("Using default configuration values.")
	}

	finalCfg := cfg
	if err := finalCfg.Validate(logger); err != nil {
		logger.Error("Final configuration is invalid, falling back to pure defaults.", "error", err)
		loadErrors = append(loadErrors, fmt.Errorf("post-load config validation failed: %w", err))
		pureDefault := getDefaultConfig()
		if valErr := pureDefault.Validate(logger); valErr != nil {
			logger.Error("FATAL: Default config definition is invalid", "error", valErr)
			return pureDefault, fmt.Errorf("default config definition is invalid: %w", valErr)
		}
		finalCfg = pureDefault
	}

	if len(loadErrors) > 0 {
		return finalCfg, fmt.Errorf("%w: %w", ErrConfig, errors.Join(loadErrors...))
	}
	return finalCfg, nil
}

// GetConfigPaths returns the primary (user config dir) and secondary (home
// dotfile) candidate locations for the config file.
func GetConfigPaths(logger *stdslog.Logger) (primary, secondary string, err error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	var pathErrors []error

	if userConfigDir, dirErr := os.UserConfigDir(); dirErr == nil {
		primary = filepath.Join(userConfigDir, configDirName, defaultConfigFileName)
	} else {
		pathErrors = append(pathErrors, fmt.Errorf("user config dir: %w", dirErr))
	}
	if homeDir, homeErr := os.UserHomeDir(); homeErr == nil {
		secondary = filepath.Join(homeDir, "."+configDirName, defaultConfigFileName)
	} else {
		pathErrors = append(pathErrors, fmt.Errorf("user home dir: %w", homeErr))
	}

	if primary == "" && secondary == "" {
		return "", "", fmt.Errorf("%w: %w", ErrConfig, errors.Join(pathErrors...))
	}
	if len(pathErrors) > 0 {
		logger.Debug("Some config locations unavailable", "error", errors.Join(pathErrors...))
	}
	return primary, secondary, nil
}

// LoadAndMergeConfig reads one config file and merges the fields it sets
// into cfg. Returns false when the file does not exist.
func LoadAndMergeConfig(path string, cfg *Config, logger *stdslog.Logger) (bool, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg FileConfig
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return true, fmt.Errorf("parsing config file JSON: %w", err)
	}

	// Only fields present in the file override the running values.
	if fileCfg.LogLevel != nil {
		cfg.LogLevel = *fileCfg.LogLevel
	}
	if fileCfg.MemoryCacheTTLSeconds != nil {
		cfg.MemoryCacheTTLSeconds = *fileCfg.MemoryCacheTTLSeconds
	}
	if fileCfg.MemoryCacheMaxBytes != nil {
		cfg.MemoryCacheMaxBytes = *fileCfg.MemoryCacheMaxBytes
	}
	if fileCfg.IndexCachePath != nil {
		cfg.IndexCachePath = *fileCfg.IndexCachePath
	}
	if fileCfg.WatchDebounceMs != nil {
		cfg.WatchDebounceMs = *fileCfg.WatchDebounceMs
	}
	logger.Debug("Merged config file", "path", path)
	return true, nil
}

// WriteDefaultConfig writes the default configuration as indented JSON,
// creating parent directories as needed.
func WriteDefaultConfig(path string, cfg Config, logger *stdslog.Logger) error {
	if logger == nil {
		logger = stdslog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	logger.Info("Wrote default config file", "path", path)
	return nil
}
