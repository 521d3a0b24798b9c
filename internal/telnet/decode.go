package telnet

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Decode converts raw backend bytes to a string, recovering from
// malformed sequences instead of failing. UTF-8 is tried first; when the
// bytes decode noticeably better as Windows-1252 (the usual source of
// smart-punctuation mojibake on older MUDs), that reading wins. Invalid
// bytes become the Unicode replacement character either way.
func Decode(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if utf8.Valid(raw) {
		return string(raw)
	}

	asUTF8 := strings.ToValidUTF8(string(raw), "�")

	asCP1252, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return asUTF8
	}

	if replacementCount(string(asCP1252)) < replacementCount(asUTF8) {
		return string(asCP1252)
	}
	return asUTF8
}

func replacementCount(s string) int {
	return strings.Count(s, "�")
}
