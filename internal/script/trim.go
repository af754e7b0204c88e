package script

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis is appended when a trim cannot end on a sentence mark.
const Ellipsis = "…"

var ellipsisLen = utf8.RuneCountInString(Ellipsis)

// Len reports the length of s in characters (runes).
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

func isSentenceMark(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	default:
		return false
	}
}

// TrimToBoundary shortens text to at most limit characters, preferring to end
// on a sentence mark and otherwise on whitespace. The result may exceed limit
// by the length of Ellipsis.
func TrimToBoundary(text string, limit int) string {
	if Len(text) <= limit {
		return text
	}

	if limit <= 0 {
		return ""
	}

	prefix := []rune(text)[:limit]

	for i := len(prefix) - 1; i >= 0; i-- {
		if !isSentenceMark(prefix[i]) {
			continue
		}

		if i == len(prefix)-1 || unicode.IsSpace(prefix[i+1]) {
			return strings.TrimRightFunc(string(prefix[:i+1]), unicode.IsSpace)
		}
	}

	cut := len(prefix)

	for i := len(prefix) - 1; i >= 0; i-- {
		if unicode.IsSpace(prefix[i]) {
			cut = i

			break
		}
	}

	out := strings.TrimRightFunc(string(prefix[:cut]), unicode.IsSpace)

	last, _ := utf8.DecodeLastRuneInString(out)
	if out != "" && !isSentenceMark(last) {
		out += Ellipsis
	}

	return out
}
