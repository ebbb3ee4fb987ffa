package main

import (
	"strings"
	"unicode"
)

// sanitize makes remote text safe to print on one terminal line. Control
// characters (including escape sequences) are dropped, line breaks become
// spaces, and emoji modifiers that break cell width are removed.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r), isJoiningRune(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isJoiningRune(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
