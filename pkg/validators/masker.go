package validators

import "strings"

// MaskString hides all but the last four characters, for logging
// identifiers that are sensitive in full (tokens, verification codes).
func MaskString(value string) string {
	if len(value) < 4 {
		return "************"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// MaskPassword returns a fixed-width mask; passwords never leak length.
func MaskPassword(string) string {
	return "*************************"
}
