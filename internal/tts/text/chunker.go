package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is the largest chunk sent to a synthesizer in one request.
const DefaultChunkSize = 1200

// Split packs whitespace-delimited words greedily into chunks of at most
// maxChars characters. Words are never broken, so a single word longer than
// maxChars becomes a chunk on its own. Whitespace inside a chunk is kept as
// is; whitespace at split points is dropped.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}

	var (
		chunks  []string
		current strings.Builder
		length  int
	)

	rest := text

	for rest != "" {
		wordStart := strings.IndexFunc(rest, isNotSpace)
		if wordStart < 0 {
			break
		}

		separator := rest[:wordStart]
		rest = rest[wordStart:]

		wordEnd := strings.IndexFunc(rest, unicode.IsSpace)
		if wordEnd < 0 {
			wordEnd = len(rest)
		}

		word := rest[:wordEnd]
		rest = rest[wordEnd:]

		wordLen := utf8.RuneCountInString(word)
		sepLen := utf8.RuneCountInString(separator)

		switch {
		case length == 0:
			current.WriteString(word)

			length = wordLen
		case length+sepLen+wordLen <= maxChars:
			current.WriteString(separator)
			current.WriteString(word)

			length += sepLen + wordLen
		default:
			chunks = append(chunks, current.String())

			current.Reset()
			current.WriteString(word)

			length = wordLen
		}
	}

	if length > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func isNotSpace(r rune) bool {
	return !unicode.IsSpace(r)
}
