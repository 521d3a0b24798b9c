package logutil

import "testing"

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"tab\there", "tab here"},
		{"crlf\r\nend", "crlf  end"},
		{"esc\x1b[31mred", "esc[31mred"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Sanitize(c.in); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("ab", 4); got != "ab" {
		t.Errorf("Truncate = %q", got)
	}
}
