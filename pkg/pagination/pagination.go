package pagination

import (
	"fmt"
	"strconv"
)

// ParseLimit parses a limit query parameter. Empty input yields def and values
// above max are clamped to max.
func ParseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	l, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}
	if l < 1 {
		return 0, fmt.Errorf("limit must be positive, got %d", l)
	}
	if l > max {
		return max, nil
	}
	return l, nil
}
