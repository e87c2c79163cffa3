package utils

import "github.com/charmbracelet/x/ansi"

// Truncate shortens s to maxLen terminal cells and appends an ellipsis.
// Escape sequences and wide runes are measured the way a terminal renders
// them.
func Truncate(s string, maxLen int) string {
	if ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen, "") + "..."
}

// FirstLine returns s up to its first newline.
func FirstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
