package caption

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxCaptionLen bounds captions kept for indexing, in bytes.
const MaxCaptionLen = 500

var codeBlockRe = regexp.MustCompile("(?s)^```(?:\\w+)?\\s*(.*?)\\s*```$")

var preamblePattern = regexp.MustCompile(`(?i)^(?:caption|description)\s*:\s*`)

// Clean strips code fences, quotes and label prefixes from a model reply and
// collapses whitespace. It reports false when nothing usable remains.
func Clean(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	s = preamblePattern.ReplaceAllString(s, "")
	s = strings.Trim(s, "\"'` ")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) < 3 {
		return "", false
	}
	if len(s) > MaxCaptionLen {
		s = strings.TrimSpace(cut(s, MaxCaptionLen))
	}
	return s, true
}

// cut returns at most n bytes of s without splitting a rune.
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
