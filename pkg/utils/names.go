package utils

import (
	"errors"
	"strings"
	"unicode"
)

// ValidateCommandName checks that a command name is non-empty, has no
// whitespace or path characters, and fits in a single chat token.
func ValidateCommandName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("command name is required and must be a non-empty string")
	}
	if trimmed != name {
		return errors.New("command name must not have surrounding whitespace")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return errors.New("command name must not contain path separators or '..'")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errors.New("command name must be a single token")
		}
	}
	if len(name) > 32 {
		return errors.New("command name must be at most 32 bytes")
	}
	return nil
}
