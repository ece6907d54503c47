package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional Go duration. Empty is zero; negative
// values are rejected. path names the key in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", path, err)
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// IsOff reports whether a schedule-like value disables its feature.
func IsOff(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "off", "none", "false", "0", "disabled":
		return true
	}
	return false
}
