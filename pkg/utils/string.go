package utils

import "github.com/charmbracelet/x/ansi"

// Truncate shortens s to maxLen terminal cells and appends an ellipsis.
// Wide runes and escape sequences are measured the way a terminal draws them.
func Truncate(s string, maxLen int) string {
	if ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen, "") + "..."
}
