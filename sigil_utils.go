// sigil/sigil_utils.go
// Shared helpers: log level parsing, content hashing, URI handling, and
// LSP <-> byte position conversion.
package sigil

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ParseLogLevel converts a level name from config or flags into a slog.Level.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level '%s' (valid: debug, info, warn, error)", levelStr)
	}
}

// hashBytes returns the SHA256 hex digest of content. Used to key cached
// snapshots and to validate persisted index entries.
func hashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ValidateURI parses a document URI and returns the file path it names.
// Only file scheme URIs are accepted.
func ValidateURI(uriStr string) (string, error) {
	u, err := url.Parse(uriStr)
	if err != nil {
		return "", fmt.Errorf("%w: parsing URI '%s': %w", ErrInvalidURI, uriStr, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: unsupported scheme '%s' (only file:// is handled)", ErrInvalidURI, u.Scheme)
	}
	path := u.Path
	if runtime.GOOS == "windows" && len(path) > 2 && path[0] == '/' && path[2] == ':' {
		path = path[1:] // strip the leading slash of /C:/...
	}
	return filepath.FromSlash(path), nil
}

// URIForPath renders the file URI for an absolute path.
func URIForPath(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// ============================================================================
// LSP Position Conversion Helpers
// ============================================================================

// LspPositionToByteOffset converts a 0-based LSP line/character pair
// (UTF-16 units) into a 0-based byte offset into content.
func LspPositionToByteOffset(content []byte, pos LSPPosition) (int, error) {
	if content == nil {
		return -1, fmt.Errorf("%w: file content is nil", ErrPositionConversion)
	}
	targetLine := int(pos.Line)
	targetChar := int(pos.Character)
	if targetLine < 0 || targetChar < 0 {
		return -1, fmt.Errorf("%w: line %d, character %d", ErrInvalidPositionInput, targetLine, targetChar)
	}

	currentLine := 0
	lineStart := 0
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for scanner.Scan() {
		lineBytes := scanner.Bytes()
		if currentLine == targetLine {
			inLine, err := Utf16OffsetToBytes(lineBytes, targetChar)
			if err != nil {
				if errors.Is(err, ErrPositionOutOfRange) {
					// Clients routinely send a character just past the line
					// end mid-edit; clamp instead of failing the query.
					inLine = len(lineBytes)
				} else {
					return -1, fmt.Errorf("converting character offset on line %d: %w", currentLine, err)
				}
			}
			return lineStart + inLine, nil
		}
		lineStart += len(lineBytes) + 1 // account for the newline
		currentLine++
	}
	if err := scanner.Err(); err != nil {
		return -1, fmt.Errorf("%w: scanning content: %w", ErrPositionConversion, err)
	}

	// Cursor on the line after the final newline.
	if currentLine == targetLine && targetChar == 0 {
		return lineStart, nil
	}
	return -1, fmt.Errorf("%w: line %d not found (content has %d lines)", ErrPositionOutOfRange, targetLine, currentLine)
}

// Utf16OffsetToBytes converts a 0-based UTF-16 offset within a single line
// to a 0-based byte offset.
func Utf16OffsetToBytes(line []byte, utf16Offset int) (int, error) {
	if utf16Offset < 0 {
		return 0, fmt.Errorf("%w: utf16 offset %d must be >= 0", ErrInvalidPositionInput, utf16Offset)
	}
	if utf16Offset == 0 {
		return 0, nil
	}

	byteOffset := 0
	units := 0
	for byteOffset < len(line) && units < utf16Offset {
		r, size := utf8.DecodeRune(line[byteOffset:])
		if r == utf8.RuneError && size <= 1 {
			return byteOffset, fmt.Errorf("%w at byte offset %d", ErrInvalidUTF8, byteOffset)
		}
		runeUnits := 1
		if r > 0xFFFF {
			runeUnits = 2
		}
		if units+runeUnits > utf16Offset {
			break // target falls inside a surrogate pair; stop before it
		}
		units += runeUnits
		byteOffset += size
	}
	if units < utf16Offset {
		return len(line), fmt.Errorf("%w: utf16 offset %d beyond line length (%d units)", ErrPositionOutOfRange, utf16Offset, units)
	}
	return byteOffset, nil
}

// ByteOffsetToLspPosition converts a 0-based byte offset into a 0-based LSP
// line/character pair (UTF-16 units). Offsets outside the content clamp to
// the nearest valid position.
func ByteOffsetToLspPosition(content []byte, offset int) LSPPosition {
	if offset < 0 {
		offset = 0
	}
	if offset > len(content) {
		offset = len(content)
	}

	line := 0
	lineStart := 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	units := 0
	for i := lineStart; i < offset; {
		r, size := utf8.DecodeRune(content[i:])
		if r == utf8.RuneError && size <= 1 {
			units++
			i++
			continue
		}
		units += len(utf16.Encode([]rune{r}))
		i += size
	}
	return LSPPosition{Line: uint32(line), Character: uint32(units)}
}
