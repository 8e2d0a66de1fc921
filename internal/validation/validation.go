// Package validation checks user-supplied paths and catalog names before
// they reach the filesystem or the database.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Limits on user input.
const (
	// MaxFileSize is the largest alignment source read into memory (256 MB).
	MaxFileSize = 256 << 20
	// MaxNameLength is the maximum catalog entry name length in bytes.
	MaxNameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrInvalidName      = errors.New("invalid name")
	ErrNameTooLong      = errors.New("name too long")
	ErrFileTooLarge     = errors.New("file too large")
)

// ValidatePath rejects empty and overlong paths and paths containing NUL
// or control characters. "-" (stdin) is valid.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateName checks a catalog entry name: non-empty, at most
// MaxNameLength bytes, no control characters, no surrounding whitespace.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: leading or trailing whitespace", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidName)
		}
	}
	return nil
}

// SanitizeName turns arbitrary text, such as a tar entry name, into a valid
// catalog name by dropping control characters, replacing path separators
// with underscores and truncating to MaxNameLength.
func SanitizeName(name string) (string, error) {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > MaxNameLength {
		out = truncate(out, MaxNameLength)
	}
	if err := ValidateName(out); err != nil {
		return "", err
	}
	return out, nil
}

// ValidateSize rejects sources larger than MaxFileSize.
func ValidateSize(n int64) error {
	if n > MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, n, MaxFileSize)
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return strings.TrimSpace(s[:cut])
}
