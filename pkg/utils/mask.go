package utils

import "strings"

// MaskSensitiveString hides the middle of a secret for display, keeping just
// enough of both ends to be recognizable.
func MaskSensitiveString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 6) + s[len(s)-4:]
}
