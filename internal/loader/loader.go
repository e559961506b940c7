package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// DefaultExtensions are the document extensions ingested when none are configured
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// Loader discovers documents under a root directory and reads them with
// their structural metadata.
type Loader struct {
	extensions map[string]struct{}
	logger     *zap.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithExtensions replaces the supported extension set. Extensions are matched
// case-insensitively, with or without a leading dot.
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		if len(exts) == 0 {
			return
		}
		l.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			l.extensions[ext] = struct{}{}
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Loader
func New(opts ...Option) *Loader {
	l := &Loader{logger: zap.NewNop()}
	WithExtensions(DefaultExtensions...)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Extensions returns the supported extensions, sorted
func (l *Loader) Extensions() []string {
	exts := make([]string, 0, len(l.extensions))
	for ext := range l.extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has a supported extension
func (l *Loader) Supports(path string) bool {
	_, ok := l.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Discover returns the absolute paths of all non-empty documents with a
// supported extension under root, sorted. Hidden directories are skipped.
func (l *Loader) Discover(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrDirectoryNotFound, absRoot)
		}
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrDirectoryNotFound, absRoot)
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || !l.Supports(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil || !fi.Mode().IsRegular() || fi.Size() == 0 {
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", absRoot, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Load reads a document and extracts its metadata. Metadata extraction
// failures degrade the metadata and are logged; only I/O errors are returned.
func (l *Loader) Load(path string) (*types.SourceDocument, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", absPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", absPath, err)
	}

	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "\uFFFD")
	}

	meta, body, err := ExtractMetadata(absPath, content, info.ModTime())
	if err != nil {
		l.logger.Warn("using degraded metadata",
			zap.String("path", absPath),
			zap.Error(err))
	}

	return &types.SourceDocument{
		Path:      absPath,
		Content:   content,
		Body:      body,
		Metadata:  meta,
		SizeBytes: info.Size(),
	}, nil
}
