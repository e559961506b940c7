package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dshills/docsearch-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentences builds text from n fixed-width sentences ("Sentence number 007 is here. ")
func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %03d is here. ", i)
	}
	return b.String()
}

// assertCoverage checks the windows cover the text with no gaps
func assertCoverage(t *testing.T, text string, spans []Span, maxSize int) {
	t.Helper()
	runes := []rune(text)
	require.NotEmpty(t, spans)

	assert.Equal(t, 0, spans[0].Start)
	// A trailing whitespace-only window is dropped
	assert.GreaterOrEqual(t, spans[len(spans)-1].End, len([]rune(strings.TrimRight(text, " \n\t"))))

	for i, s := range spans {
		assert.NotEmpty(t, s.Text, "span %d is empty", i)
		assert.LessOrEqual(t, s.End-s.Start, maxSize, "span %d too long", i)
		assert.Equal(t, strings.TrimSpace(string(runes[s.Start:s.End])), s.Text)
		if i > 0 {
			prev := spans[i-1]
			assert.Greater(t, s.Start, prev.Start, "span %d did not advance", i)
			assert.LessOrEqual(t, s.Start, prev.End, "gap before span %d", i)
		}
	}
}

func TestNew(t *testing.T) {
	c, err := New("", 500, 50)
	require.NoError(t, err)
	assert.Equal(t, StrategySentence, c.Name())

	c, err = New(StrategyFixed, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, StrategyFixed, c.Name())

	_, err = New("semantic", 500, 50)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRegister(t *testing.T) {
	Register("test-fixed", func(opts Options) Chunker { return NewFixedChunker(opts) })
	assert.Contains(t, Strategies(), "test-fixed")

	c, err := New("test-fixed", 10, 0)
	require.NoError(t, err)
	assert.Len(t, c.Split(strings.Repeat("a", 25)), 3)
}

func TestSplit_ShortText(t *testing.T) {
	c := NewSentenceChunker(Options{MaxSize: 100, Overlap: 10})

	spans := c.Split("  Hello world.  \n")
	require.Len(t, spans, 1)
	assert.Equal(t, "Hello world.", spans[0].Text)

	exact := strings.Repeat("x", 100)
	spans = c.Split(exact)
	require.Len(t, spans, 1)
	assert.Equal(t, exact, spans[0].Text)
}

func TestSplit_EmptyInput(t *testing.T) {
	c := NewSentenceChunker(Options{MaxSize: 100, Overlap: 10})
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplit_Coverage(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		overlap int
	}{
		{"default", 1000, 100},
		{"no overlap", 300, 0},
		{"small windows", 120, 30},
		{"overlap equals size", 200, 200},
		{"overlap exceeds size", 100, 1000},
		{"tiny size", 1, 5},
	}

	text := sentences(80)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, c := range []Chunker{
				NewSentenceChunker(Options{MaxSize: tt.maxSize, Overlap: tt.overlap}),
				NewFixedChunker(Options{MaxSize: tt.maxSize, Overlap: tt.overlap}),
			} {
				spans := c.Split(text)
				if tt.maxSize == 1 {
					// Spaces produce empty windows that are dropped
					for _, s := range spans {
						assert.NotEmpty(t, s.Text)
					}
					continue
				}
				assertCoverage(t, text, spans, tt.maxSize)
			}
		})
	}
}

func TestSplit_OverlapClamped(t *testing.T) {
	c := NewSentenceChunker(Options{MaxSize: 100, Overlap: 500})
	assert.Equal(t, 50, c.opts.Overlap)

	c = NewSentenceChunker(Options{MaxSize: 0, Overlap: -3})
	assert.Equal(t, DefaultMaxSize, c.opts.MaxSize)
	assert.Equal(t, 0, c.opts.Overlap)
}

func TestSplit_ThreeThousandChars(t *testing.T) {
	text := sentences(100)
	require.Equal(t, 3000, utf8.RuneCountInString(text))

	c, err := New(StrategySentence, 1000, 100)
	require.NoError(t, err)

	doc := &types.SourceDocument{Path: "/docs/A.md", Body: text}
	chunks := c.Chunk(doc)

	assert.GreaterOrEqual(t, len(chunks), 3)
	assert.LessOrEqual(t, len(chunks), 4)

	for i, ch := range chunks {
		assert.LessOrEqual(t, ch.Length, 1000)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "/docs/A.md", ch.DocumentPath)
		if i > 0 {
			prev := chunks[i-1]
			assert.Less(t, ch.StartOffset, prev.EndOffset, "chunks %d and %d share no overlap", i-1, i)
		}
	}

	// Windows close after a sentence terminator
	for _, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(ch.Content, "."), "chunk should end on a sentence: %q", ch.Content[len(ch.Content)-20:])
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	first := strings.Repeat("word ", 30) + "end."
	text := first + "\n\n" + strings.Repeat("more text here. ", 20)

	c := NewSentenceChunker(Options{MaxSize: 200, Overlap: 0})
	spans := c.Split(text)
	require.NotEmpty(t, spans)
	assert.Equal(t, first, spans[0].Text)
}

func TestSplit_SkipsAbbreviations(t *testing.T) {
	// The only terminators near the window end are abbreviations
	text := strings.Repeat("a", 60) + ". Talk to Dr. Smith and J. R. Doe " + strings.Repeat("b", 60)
	c := NewSentenceChunker(Options{MaxSize: 100, Overlap: 0})

	spans := c.Split(text)
	require.NotEmpty(t, spans)
	assert.Equal(t, strings.Repeat("a", 60)+".", spans[0].Text)
}

func TestIsAbbreviation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Ask Dr. Who", true},
		{"See fig. 3", true},
		{"Use e.g. this", true},
		{"Ask J. R. Doe", true},
		{"See No. 5", true},
		{"It ended. Then", false},
		{"The answer is no. Next", false},
		{"Fall back to plan B. Then", false},
		{"Mr J. Doe", false},
		{"Wait... what", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			runes := []rune(tt.text)
			dot := -1
			for i := len(runes) - 1; i >= 0; i-- {
				if runes[i] == '.' && i+1 < len(runes) && runes[i+1] == ' ' {
					dot = i
					break
				}
			}
			require.GreaterOrEqual(t, dot, 0)
			assert.Equal(t, tt.want, isAbbreviation(runes, 0, dot))
		})
	}
}

func TestSplit_Unicode(t *testing.T) {
	text := strings.Repeat("日本語の文章です。 ", 40)
	c := NewFixedChunker(Options{MaxSize: 50, Overlap: 10})

	spans := c.Split(text)
	assertCoverage(t, text, spans, 50)
	for _, s := range spans {
		assert.True(t, utf8.ValidString(s.Text))
	}
}

func TestChunk_UsesBody(t *testing.T) {
	c := NewSentenceChunker(Options{MaxSize: 100, Overlap: 10})
	doc := &types.SourceDocument{
		Path:    "/docs/ctx/a.md",
		Content: "---\ntitle: A\n---\nBody text.",
		Body:    "Body text.",
	}

	chunks := c.Chunk(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Body text.", chunks[0].Content)
	assert.Equal(t, 10, chunks[0].Length)
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 25, EstimateTokenCount(strings.Repeat("x", 100)))
}
