package identity

import (
	"fmt"
	"strings"
)

// macHexLength is the number of hex characters in an EUI-48 MAC address.
const macHexLength = 12

// shortIDLength is the number of trailing hex characters used for the
// short device identifier in display names.
const shortIDLength = 6

// NormalizeMAC converts a MAC address in any common format to the canonical
// form used as a unique ID: 12 lowercase hex characters, no separators.
//
// Accepted input formats: "AA:BB:CC:11:22:33", "aa-bb-cc-11-22-33",
// "aabb.cc11.2233", "AABBCC112233".
//
// Returns ErrInvalidMAC if the input does not contain exactly 12 hex digits.
func NormalizeMAC(mac string) (string, error) {
	var b strings.Builder
	b.Grow(macHexLength)

	for _, r := range mac {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r + ('a' - 'A'))
		case r == ':' || r == '-' || r == '.':
			// separator, skip
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
		}
	}

	if b.Len() != macHexLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return b.String(), nil
}

// ShortID returns the short device identifier derived from a MAC address:
// the last 6 hex characters, uppercased. The result is invariant to the
// input's casing and separator format.
//
// Input that cannot be normalised yields the uppercased tail of whatever
// hex-like content remains; callers validate MACs before display.
func ShortID(mac string) string {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		normalized = strings.ToLower(strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac))
	}
	if len(normalized) <= shortIDLength {
		return strings.ToUpper(normalized)
	}
	return strings.ToUpper(normalized[len(normalized)-shortIDLength:])
}
