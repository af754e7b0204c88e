// Package text prepares narration scripts for speech synthesis.
//
// A script goes through three steps before it reaches a synthesizer:
// markdown and formatting cleanup, splitting into request-sized chunks,
// and optionally SSML rendering for engines that accept markup.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// DefaultBoldLineMax is the length under which a bold-only line is treated as
// a heading and dropped.
const DefaultBoldLineMax = 60

// Regex patterns for text preprocessing.
const (
	referenceRegexPattern  = `\[\d+\]`
	whitespaceRegexPattern = `[ \t\f\v\x{00A0}]+`
	blankLinesRegexPattern = `\n{3,}`
)

// Punctuation and formatting constants.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsis       = "..."
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	lineFeed       = "\n"
	paragraphBreak = "\n\n"
	strongLevel    = 2
)

// Preprocessor cleans model output into plain narration text.
type Preprocessor struct {
	markdown          goldmark.Markdown
	referencePattern  *regexp.Regexp
	whitespacePattern *regexp.Regexp
	blankLinesPattern *regexp.Regexp
	quoteReplacer     *strings.Replacer
	boldLineMax       int
}

// NewPreprocessor creates a new text preprocessor with compiled patterns and replacers.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		markdown:          goldmark.New(),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		blankLinesPattern: regexp.MustCompile(blankLinesRegexPattern),
		quoteReplacer: strings.NewReplacer(
			emDash, " - ",
			enDash, "-",
			figureDash, "-",
			ellipsis, ellipsisChar,
			"“", `"`, "”", `"`, "„", `"`,
			"‘", "'", "’", "'",
		),
		boldLineMax: DefaultBoldLineMax,
	}
}

// PreprocessText strips markdown, citation markers and typographic noise,
// keeping one paragraph per block separated by a blank line.
func (p *Preprocessor) PreprocessText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = strings.ReplaceAll(text, carriageReturn, lineFeed)
	text = p.stripMarkdown([]byte(text))
	text = p.referencePattern.ReplaceAllString(text, "")
	text = p.quoteReplacer.Replace(text)
	text = removeExcessivePunctuation(text)

	lines := strings.Split(text, lineFeed)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(p.whitespacePattern.ReplaceAllString(line, " "))
	}

	text = strings.Join(lines, lineFeed)
	text = p.blankLinesPattern.ReplaceAllString(text, paragraphBreak)

	return strings.TrimSpace(text)
}

// stripMarkdown walks the goldmark AST and keeps readable text only.
// Headings, code blocks, images and short bold-only lines are dropped.
func (p *Preprocessor) stripMarkdown(source []byte) string {
	doc := p.markdown.Parser().Parse(gmtext.NewReader(source))

	var (
		blocks     []string
		lines      []string
		line       strings.Builder
		onlyStrong = true
	)

	flushLine := func() {
		current := strings.TrimSpace(line.String())
		boldHeading := onlyStrong && utf8.RuneCountInString(current) < p.boldLineMax

		if current != "" && !boldHeading {
			lines = append(lines, current)
		}

		line.Reset()

		onlyStrong = true
	}

	flushBlock := func() {
		flushLine()

		if len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, lineFeed))
		}

		lines = nil
	}

	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := node.(type) {
		case *ast.Heading, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock,
			*ast.ThematicBreak, *ast.Image, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			if !entering {
				flushBlock()
			}
		case *ast.String:
			if entering {
				line.Write(n.Value)
			}
		case *ast.Text:
			if !entering {
				break
			}

			segment := n.Segment.Value(source)
			line.Write(segment)

			if len(strings.TrimSpace(string(segment))) > 0 && !insideStrong(n) {
				onlyStrong = false
			}

			if n.SoftLineBreak() || n.HardLineBreak() {
				flushLine()
			}
		}

		return ast.WalkContinue, nil
	})

	flushBlock()

	return strings.Join(blocks, paragraphBreak)
}

func insideStrong(node ast.Node) bool {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		if emphasis, ok := parent.(*ast.Emphasis); ok && emphasis.Level >= strongLevel {
			return true
		}
	}

	return false
}

// removeExcessivePunctuation collapses runs of the same exclamation, question
// or comma mark into one.
func removeExcessivePunctuation(text string) string {
	var (
		result strings.Builder
		last   rune
	)

	for _, char := range text {
		if char == last && (char == '!' || char == '?' || char == ',') {
			continue
		}

		result.WriteRune(char)

		last = char
	}

	return result.String()
}

// IsBlank reports whether text has nothing to speak.
func IsBlank(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return !unicode.IsSpace(r) && !unicode.IsPunct(r)
	}) < 0
}
