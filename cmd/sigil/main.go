// Command sigil serves Rust signature help over LSP and answers one-shot
// queries from the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stlog "log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/sigil"
)

// App version (set via linker flags -ldflags="-X main.appVersion=...")
var appVersion = "dev"

var flagLogLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:           "sigil",
		Short:         "Signature help for Rust call sites, computed from syntax alone",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(queryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the global logger. Serve mode also
// tees logs into a file because stdout/stderr belong to the LSP transport.
func setup(logToFile bool) (sigil.Config, *slog.Logger, func(), error) {
	cleanup := func() {}

	var logWriter io.Writer = os.Stderr
	if logToFile {
		logFile, err := os.OpenFile("sigil-lsp.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			stlog.Fatalf("Failed to open log file: %v", err)
		}
		cleanup = func() { logFile.Close() }
		logWriter = io.MultiWriter(os.Stderr, logFile)
	}

	tempLogger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, cfgErr := sigil.LoadConfig(tempLogger)
	if cfgErr != nil && !errors.Is(cfgErr, sigil.ErrConfig) {
		cleanup()
		return sigil.Config{}, nil, nil, cfgErr
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logLevel, parseErr := sigil.ParseLogLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = slog.LevelInfo
		tempLogger.Warn("Invalid log level, using default 'info'", "config_level", cfg.LogLevel, "error", parseErr)
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Warn("Configuration loaded with warnings", "error", cfgErr)
	}
	return cfg, logger, cleanup, nil
}

func serveCmd() *cobra.Command {
	var watchDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LSP server on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(true)
			if err != nil {
				return err
			}
			defer cleanup()

			workspace, err := sigil.NewWorkspace(cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing workspace: %w", err)
			}
			defer workspace.Close()

			if watchDir != "" {
				if _, err := workspace.LoadDirectory(watchDir); err != nil {
					logger.Warn("Initial workspace load failed", "dir", watchDir, "error", err)
				}
				watcher, watchErr := sigil.NewWatcher(watchDir, workspace, logger,
					sigil.WithDebounce(cfg.WatchDebounce))
				if watchErr != nil {
					logger.Warn("Filesystem watching disabled", "dir", watchDir, "error", watchErr)
				} else {
					watcher.Start()
					defer watcher.Stop()
				}
			}

			engine := sigil.NewEngine(workspace, logger)
			server := sigil.NewServer(engine, workspace, cfg, logger, appVersion)

			logger.Info("Sigil LSP server starting", "version", appVersion, "log_level", cfg.LogLevel)
			server.Run(os.Stdin, os.Stdout)
			logger.Info("Sigil LSP server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&watchDir, "watch", "", "directory to preload and keep indexed")
	return cmd
}

func queryCmd() *cobra.Command {
	var (
		line   int
		col    int
		offset int
		dir    string
	)

	cmd := &cobra.Command{
		Use:   "query <file>",
		Short: "Print signature help for a position as JSON",
		Long: `Print signature help for a position as JSON.

The position is given either as --offset (byte offset) or as --line and
--col (both 1-based). With --dir the whole directory is indexed first so
callees defined in other files resolve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(false)
			if err != nil {
				return err
			}
			defer cleanup()

			filePath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			content, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("reading %s: %w", filePath, err)
			}

			byteOffset := offset
			if !cmd.Flags().Changed("offset") {
				if line < 1 || col < 1 {
					return errors.New("provide --offset, or --line and --col (1-based)")
				}
				byteOffset, err = offsetForLineCol(content, line, col)
				if err != nil {
					return err
				}
			}

			workspace, err := sigil.NewWorkspace(cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing workspace: %w", err)
			}
			defer workspace.Close()

			if dir != "" {
				if _, err := workspace.LoadDirectory(dir); err != nil {
					return err
				}
			}
			workspace.SetFile(sigil.FileID(filePath), content, 0)

			engine := sigil.NewEngine(workspace, logger)
			info, err := engine.SignatureHelp(context.Background(), sigil.FilePosition{
				File:   sigil.FileID(filePath),
				Offset: byteOffset,
			})
			if err != nil {
				return err
			}
			if info == nil {
				fmt.Println("null")
				return nil
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&line, "line", 0, "1-based line of the cursor")
	cmd.Flags().IntVar(&col, "col", 0, "1-based column (byte) of the cursor")
	cmd.Flags().IntVar(&offset, "offset", 0, "byte offset of the cursor")
	cmd.Flags().StringVar(&dir, "dir", "", "directory to index before querying")
	return cmd
}

// offsetForLineCol converts 1-based line/column (bytes) to a byte offset.
func offsetForLineCol(content []byte, line, col int) (int, error) {
	currentLine := 1
	lineStart := 0
	for i := 0; i <= len(content); i++ {
		atEnd := i == len(content)
		if currentLine == line {
			off := lineStart + col - 1
			lineEnd := i
			for lineEnd < len(content) && content[lineEnd] != '\n' {
				lineEnd++
			}
			if off > lineEnd {
				return 0, fmt.Errorf("column %d beyond end of line %d", col, line)
			}
			return off, nil
		}
		if atEnd {
			break
		}
		if content[i] == '\n' {
			currentLine++
			lineStart = i + 1
		}
	}
	return 0, fmt.Errorf("line %d beyond end of file (%d lines)", line, currentLine)
}
