package text

import (
	"fmt"
	"strings"
	"unicode"
)

// SSMLOptions controls prosody and pauses in rendered SSML.
type SSMLOptions struct {
	Rate          string
	Pitch         string
	SentencePause string
	EmphasisPause string
}

// DefaultSSMLOptions returns slightly slow, slightly low narration with
// pauses after sentences.
func DefaultSSMLOptions() SSMLOptions {
	return SSMLOptions{
		Rate:          "90%",
		Pitch:         "-2st",
		SentencePause: "400ms",
		EmphasisPause: "500ms",
	}
}

var ssmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// BuildSSML renders a chunk as SSML with one <p> per non-empty line.
func BuildSSML(chunk string, opts SSMLOptions) string {
	defaults := DefaultSSMLOptions()

	if opts.Rate == "" {
		opts.Rate = defaults.Rate
	}

	if opts.Pitch == "" {
		opts.Pitch = defaults.Pitch
	}

	if opts.SentencePause == "" {
		opts.SentencePause = defaults.SentencePause
	}

	if opts.EmphasisPause == "" {
		opts.EmphasisPause = defaults.EmphasisPause
	}

	var body strings.Builder

	for _, line := range strings.Split(strings.TrimSpace(chunk), lineFeed) {
		if strings.TrimSpace(line) == "" {
			continue
		}

		body.WriteString("<p>")
		body.WriteString(withPauses(ssmlEscaper.Replace(strings.TrimSpace(line)), opts))
		body.WriteString("</p>")
	}

	return fmt.Sprintf(`<speak><prosody rate="%s" pitch="%s">%s</prosody></speak>`,
		opts.Rate, opts.Pitch, body.String())
}

// withPauses inserts a break after sentence marks that end a sentence, so
// decimals and abbreviations inside a word are left alone.
func withPauses(line string, opts SSMLOptions) string {
	runes := []rune(line)

	var out strings.Builder

	for i, r := range runes {
		out.WriteRune(r)

		atBoundary := i == len(runes)-1 || unicode.IsSpace(runes[i+1])
		if !atBoundary {
			continue
		}

		switch r {
		case '!', '?':
			fmt.Fprintf(&out, `<break time="%s"/>`, opts.EmphasisPause)
		case '.', '…':
			fmt.Fprintf(&out, `<break time="%s"/>`, opts.SentencePause)
		}
	}

	return out.String()
}
