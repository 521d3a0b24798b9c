// Package chunker splits backend output into chat-message-sized fragments.
//
// Chat platforms cap message length, while a single MUD command can easily
// produce several screens of output. Chunk packs lines greedily into
// bounded fragments, preferring to cut on line boundaries, never splitting
// an ANSI escape sequence or a UTF-8 rune, and capping the total number of
// fragments with a truncation notice.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TruncationNotice terminates the last chunk when output had to be dropped.
const TruncationNotice = "…(output truncated)"

// ansiCSI matches a complete ANSI CSI escape sequence (ESC [ params letter).
var ansiCSI = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// dashReplacer folds Unicode dash variants to a plain hyphen. MUD content
// written on modern editors tends to carry en/em dashes that render poorly
// in monospace chat clients.
var dashReplacer = strings.NewReplacer(
	"‐", "-", // hyphen
	"‑", "-", // non-breaking hyphen
	"‒", "-", // figure dash
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
)

// Normalize prepares backend output for chunking: CRLF to LF and dash
// variants to plain hyphens.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return dashReplacer.Replace(text)
}

// Chunk splits text into at most maxChunks fragments of at most maxSize
// bytes each. Lines are never split across fragments unless a single line
// alone exceeds maxSize. When output remains after maxChunks fragments,
// the final fragment ends with TruncationNotice.
//
// Empty input yields no fragments. Whitespace-only input still counts as
// content and yields one fragment.
func Chunk(text string, maxSize, maxChunks int) []string {
	text = Normalize(text)
	if text == "" || maxSize <= 0 || maxChunks <= 0 {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		if len(text) > maxSize {
			text = text[:runeCut(text, maxSize)]
		}
		return []string{text}
	}

	var chunks []string
	remaining := text
	truncated := false

	for remaining != "" {
		if len(chunks) >= maxChunks {
			truncated = true
			break
		}
		if len(remaining) <= maxSize {
			chunks = append(chunks, remaining)
			break
		}

		cut := maxSize

		// Prefer a line boundary within the last third of the window so
		// chunks end on complete lines without wasting too much room.
		windowStart := maxSize - maxSize/3
		if nl := strings.LastIndexByte(remaining[windowStart:maxSize], '\n'); nl != -1 {
			cut = windowStart + nl + 1
		}

		cut = safeCut(remaining, cut)
		if cut <= 0 {
			// The text starts inside territory we refuse to split; emit
			// the leading escape sequence whole, or hard-cut at maxSize.
			if m := ansiCSI.FindStringIndex(remaining); m != nil && m[0] == 0 {
				cut = m[1]
			} else {
				cut = runeCut(remaining, maxSize)
			}
		}

		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}

	if truncated && len(chunks) > 0 {
		chunks[len(chunks)-1] = appendNotice(chunks[len(chunks)-1], maxSize)
	}

	// Trim trailing whitespace per chunk and drop fragments that became
	// empty; the line content itself is preserved.
	out := chunks[:0]
	for _, c := range chunks {
		c = strings.TrimRight(c, " \t\n")
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// appendNotice makes the truncation notice the final characters of the
// chunk, replacing trailing content if needed to stay within maxSize.
func appendNotice(chunk string, maxSize int) string {
	chunk = strings.TrimRight(chunk, " \t\n")
	if len(chunk)+1+len(TruncationNotice) > maxSize {
		keep := maxSize - 1 - len(TruncationNotice)
		if keep < 0 {
			return TruncationNotice
		}
		chunk = strings.TrimRight(chunk[:safeCut(chunk, keep)], " \t\n")
	}
	if chunk == "" {
		return TruncationNotice
	}
	return chunk + "\n" + TruncationNotice
}

// safeCut returns a cut index <= cut that lands on a UTF-8 rune boundary
// and does not split an ANSI CSI sequence. If the cut would fall inside a
// sequence, it backs up to just before the ESC.
func safeCut(s string, cut int) int {
	if cut <= 0 || cut >= len(s) {
		return cut
	}
	cut = runeCut(s, cut)

	esc := strings.LastIndexByte(s[:cut], 0x1b)
	if esc == -1 {
		return cut
	}
	if m := ansiCSI.FindStringIndex(s[esc:]); m != nil && esc+m[1] <= cut {
		return cut
	}
	return esc
}

// runeCut backs cut up to the nearest UTF-8 rune start.
func runeCut(s string, cut int) int {
	if cut >= len(s) {
		return len(s)
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}

// HasANSI reports whether the text contains an ANSI escape introducer.
func HasANSI(text string) bool {
	return strings.Contains(text, "\x1b[")
}

// WrapANSIBlock fences a chunk in the chat platform's ansi code block so
// color sequences render, ensuring a terminating SGR reset. Applied per
// chunk: the fence never spans a chunk boundary.
func WrapANSIBlock(chunk string) string {
	if !strings.HasSuffix(chunk, "\x1b[0m") {
		chunk += "\x1b[0m"
	}
	return "```ansi\n" + chunk + "\n```"
}

// FenceOverhead is the worst-case byte cost WrapANSIBlock adds to a
// chunk, fencing plus the reset it may append. Callers shrink the inner
// chunk size by this much so fenced chunks still fit the platform limit.
const FenceOverhead = len("```ansi\n") + len("\x1b[0m") + len("\n```")
