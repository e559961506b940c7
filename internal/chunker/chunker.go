package chunker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

const (
	// DefaultMaxSize is the default maximum chunk length in characters
	DefaultMaxSize = 1000

	// DefaultOverlap is the default number of characters shared by consecutive chunks
	DefaultOverlap = 100

	// LookBack is how far before a window's end a boundary is searched for
	LookBack = 200

	// MinProgress is the minimum forward step between consecutive windows
	MinProgress = 50

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Strategy names
const (
	StrategySentence = "sentence"
	StrategyFixed    = "fixed"
)

// ErrUnknownStrategy is returned by New for an unregistered strategy name.
var ErrUnknownStrategy = errors.New("unknown chunking strategy")

// Span is one window over the input text. Start and End are rune offsets of
// the untrimmed window; Text is the trimmed content.
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunker splits document bodies into bounded, overlapping chunks.
type Chunker interface {
	// Split returns the non-empty windows over text, in order.
	Split(text string) []Span

	// Chunk splits a document body into typed chunks with sequential indexes.
	Chunk(doc *types.SourceDocument) []types.Chunk

	// Name returns the strategy name.
	Name() string
}

// Options configures a chunking strategy
type Options struct {
	MaxSize int
	Overlap int
}

// normalize applies defaults and clamps overlap to [0, MaxSize/2]
func (o Options) normalize() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap > o.MaxSize/2 {
		o.Overlap = o.MaxSize / 2
	}
	return o
}

// Constructor builds a Chunker for a strategy
type Constructor func(opts Options) Chunker

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{
		StrategySentence: func(opts Options) Chunker { return NewSentenceChunker(opts) },
		StrategyFixed:    func(opts Options) Chunker { return NewFixedChunker(opts) },
	}
)

// Register makes a strategy available to New. Registering an existing name
// replaces it.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// Strategies returns the registered strategy names, sorted
func Strategies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the named chunking strategy. An empty name selects the
// sentence-aware strategy.
func New(name string, maxSize, overlap int) (Chunker, error) {
	if name == "" {
		name = StrategySentence
	}

	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownStrategy, name, strings.Join(Strategies(), ", "))
	}

	return ctor(Options{MaxSize: maxSize, Overlap: overlap}), nil
}

// breakFunc returns a window end in (start, end], or -1 to keep end.
type breakFunc func(runes []rune, start, end int) int

// split advances a MaxSize window across text. Each next window starts
// Overlap runes before the previous end, raised to the progress floor, so
// windows never leave a gap and always move forward.
func split(text string, opts Options, findBreak breakFunc) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	if n <= opts.MaxSize {
		if s := strings.TrimSpace(text); s != "" {
			return []Span{{Start: 0, End: n, Text: s}}
		}
		return nil
	}

	spans := make([]Span, 0, n/opts.MaxSize+2)
	start := 0
	for start < n {
		end := start + opts.MaxSize
		if end >= n {
			end = n
		} else if findBreak != nil {
			if b := findBreak(runes, start, end); b > start {
				end = b
			}
		}

		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			spans = append(spans, Span{Start: start, End: end, Text: s})
		}

		if end >= n {
			break
		}

		next := end - opts.Overlap
		floor := start + min(MinProgress, end-start)
		if next < floor {
			next = floor
		}
		start = next
	}

	return spans
}

// toChunks converts spans into typed chunks for a document
func toChunks(doc *types.SourceDocument, spans []Span) []types.Chunk {
	chunks := make([]types.Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, types.NewChunk(doc.Path, i, s.Text, s.Start, s.End))
	}
	return chunks
}

// EstimateTokenCount estimates token count using chars/4 heuristic
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
