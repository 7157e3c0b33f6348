// sigil/sigil_errors.go
// Contains exported error definitions for the sigil package.
package sigil

import "errors"

var (
	// ErrConfig indicates non-fatal errors during config loading or processing.
	ErrConfig = errors.New("configuration error")

	// ErrInvalidConfig indicates a configuration value is invalid after validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrFileNotFound indicates the requested file is not part of the workspace.
	ErrFileNotFound = errors.New("file not tracked in workspace")

	// ErrCache indicates a general cache operation failure.
	ErrCache = errors.New("cache operation failed")

	// ErrCacheRead indicates failure reading from the index cache.
	ErrCacheRead = errors.New("cache read failed")

	// ErrCacheWrite indicates failure writing to the index cache.
	ErrCacheWrite = errors.New("cache write failed")

	// ErrCacheEncode indicates failure encoding data for the index cache.
	ErrCacheEncode = errors.New("cache encode failed")

	// ErrCacheDecode indicates failure decoding data read from the index cache.
	ErrCacheDecode = errors.New("cache decode failed")

	// ErrPositionConversion indicates failure converting between position formats (e.g., LSP <-> byte offset).
	ErrPositionConversion = errors.New("position conversion failed")

	// ErrInvalidPositionInput indicates input position values (line/col) are invalid.
	ErrInvalidPositionInput = errors.New("invalid input position")

	// ErrPositionOutOfRange indicates a position is outside the valid bounds of the file or line.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrInvalidUTF8 indicates an invalid UTF-8 sequence was encountered during processing.
	ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")

	// ErrInvalidURI indicates a document URI is invalid or uses an unsupported scheme.
	ErrInvalidURI = errors.New("invalid document URI")
)
