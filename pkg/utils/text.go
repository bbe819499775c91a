package utils

// Truncate returns s truncated to at most maxRunes runes, with "..." appended
// when anything was cut. Rune-based so multi-byte text is never split mid-character.
// If maxRunes is 0 or negative, returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
