package validators

import "strings"

// SanitizeString collapses whitespace runs to single spaces and truncates the
// result to maxLen runes. maxLen <= 0 means no limit.
func SanitizeString(input string, maxLen int) string {
	clean := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 {
		return clean
	}
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
