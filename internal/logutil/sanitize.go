package logutil

import "strings"

// Sanitize makes user-supplied text safe to embed in a log line. Chat
// identities and message text pass through here before logging so that
// embedded newlines or control characters cannot forge log entries.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32:
			// Drop other control characters, including ANSI introducers.
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate caps s at maxLen bytes for compact log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
