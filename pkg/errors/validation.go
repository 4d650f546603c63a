package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// templateIDRegex matches catalog ids such as "basic" or "ferretSOL".
var templateIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateTemplateID validates a template id for safety and correctness.
// Template ids end up in file names and cache keys, so the rules are strict:
//   - No empty ids
//   - Maximum length of 64 characters
//   - Letters, digits, dash and underscore only
func ValidateTemplateID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidTemplate, "template id cannot be empty")
	}
	if len(id) > 64 {
		return New(ErrCodeInvalidTemplate, "template id too long (max 64 characters)")
	}
	if !templateIDRegex.MatchString(id) {
		return New(ErrCodeInvalidTemplate, "invalid template id: %q", id)
	}
	return nil
}

// ValidateNodeID validates a design node id ("41-6091" or "41:6091").
func ValidateNodeID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "node id cannot be empty")
	}
	for _, r := range id {
		if !(unicode.IsDigit(r) || r == '-' || r == ':') {
			return New(ErrCodeInvalidInput, "invalid node id: %q", id)
		}
	}
	return nil
}

// ValidatePath validates a file path inside a template bundle.
// It prevents path traversal and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
