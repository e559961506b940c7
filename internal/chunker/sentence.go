package chunker

import (
	"strings"
	"unicode"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// abbreviations that end with a period but do not end a sentence
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "inc": {}, "ltd": {}, "co": {},
	"e.g": {}, "i.e": {}, "fig": {}, "approx": {},
}

// SentenceChunker closes windows on paragraph or sentence boundaries when one
// exists within LookBack characters of the window end.
type SentenceChunker struct {
	opts Options
}

// NewSentenceChunker creates a sentence-aware chunker
func NewSentenceChunker(opts Options) *SentenceChunker {
	return &SentenceChunker{opts: opts.normalize()}
}

// Name returns the strategy name
func (c *SentenceChunker) Name() string { return StrategySentence }

// Split splits text into overlapping windows
func (c *SentenceChunker) Split(text string) []Span {
	return split(text, c.opts, findSentenceBreak)
}

// Chunk splits the document body
func (c *SentenceChunker) Chunk(doc *types.SourceDocument) []types.Chunk {
	return toChunks(doc, c.Split(doc.Body))
}

// findSentenceBreak prefers a blank line, then the last sentence terminator
// followed by whitespace that is not an abbreviation.
func findSentenceBreak(runes []rune, start, end int) int {
	lo := max(end-LookBack, start+1)

	for i := end - 1; i >= lo; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}

	for i := end - 1; i >= lo; i-- {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && isAbbreviation(runes, start, i) {
			continue
		}
		return i + 1
	}

	return -1
}

// isAbbreviation checks the token ending at the period at index dot
func isAbbreviation(runes []rune, start, dot int) bool {
	j := dot
	for j > start && (unicode.IsLetter(runes[j-1]) || runes[j-1] == '.') {
		j--
	}

	word := strings.ToLower(strings.Trim(string(runes[j:dot]), "."))
	if word == "" {
		return false
	}

	// A lone capital is an initial only next to another one, as in "J. R. Doe"
	if dot-j == 1 && unicode.IsUpper(runes[j]) {
		return initialAfter(runes, dot) || initialBefore(runes, start, j)
	}

	// "No. 5" but not "the answer is no. Next"
	if word == "no" {
		next := skipSpace(runes, dot+1)
		return next < len(runes) && unicode.IsDigit(runes[next])
	}

	_, ok := abbreviations[word]
	return ok
}

// initialAfter reports whether a capital followed by a period comes next
func initialAfter(runes []rune, dot int) bool {
	i := skipSpace(runes, dot+1)
	return i+1 < len(runes) && unicode.IsUpper(runes[i]) && runes[i+1] == '.' &&
		(i+2 == len(runes) || !unicode.IsLetter(runes[i+2]))
}

// initialBefore reports whether the token at j is preceded by "X. "
func initialBefore(runes []rune, start, j int) bool {
	i := j - 1
	if i < start || !unicode.IsSpace(runes[i]) {
		return false
	}
	for i > start && unicode.IsSpace(runes[i]) {
		i--
	}
	if i-1 < start || runes[i] != '.' || !unicode.IsUpper(runes[i-1]) {
		return false
	}
	return i-2 < start || !unicode.IsLetter(runes[i-2])
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}
