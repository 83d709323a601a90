package sandbox

import "strings"

// SanitizeCode normalizes guest source before validation and execution:
// strip embedded NULs, normalize line endings to LF, and right-strip
// every line. Validation and execution both run on this normalized form.
func SanitizeCode(source string) string {
	source = strings.ReplaceAll(source, "\x00", "")
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
