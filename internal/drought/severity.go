// Package drought classifies standardized index values into the severity
// buckets used across the dashboard (Normal/Wet, D0..D4).
package drought

import "strings"

// Class buckets an index value by the fixed US Drought Monitor style
// thresholds. Boundaries are half-open: exactly -0.8 is D0, -0.801 is D1.
func Class(value float64) string {
	switch {
	case value >= 0:
		return "Normal/Wet"
	case value >= -0.8:
		return "D0"
	case value >= -1.3:
		return "D1"
	case value >= -1.6:
		return "D2"
	case value >= -2.0:
		return "D3"
	default:
		return "D4"
	}
}

// ClassForIndex applies Class only to standardized precipitation-style
// indices; anything else (raw precip, temperature) has no severity scale.
func ClassForIndex(index string, value *float64) string {
	if value == nil {
		return "N/A"
	}
	idx := strings.ToLower(index)
	if strings.HasPrefix(idx, "spi") || strings.HasPrefix(idx, "spei") {
		return Class(*value)
	}
	return "N/A"
}
