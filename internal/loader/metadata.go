package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// HeaderMarker delimits the structured header block at the top of a document
const HeaderMarker = "---"

var (
	headingPattern = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t#]*$`)
	hashtagPattern = regexp.MustCompile(`(?:^|[\s(\[,])#(\p{L}[\p{L}\p{N}_\-/]*)`)

	errUnterminatedHeader = errors.New("unterminated header block")
)

// header is the supported subset of the header block
type header struct {
	Title string
	Tags  []string
}

// ExtractMetadata derives title, context, tags and modification time for a
// document and returns the body with the header block removed.
//
// On a header parse error the minimal record is returned (title from the
// filename, tags = [context]) together with an error wrapping
// types.ErrMetadataExtraction. The returned metadata is always usable.
func ExtractMetadata(path, content string, modTime time.Time) (types.DocumentMetadata, string, error) {
	contextID := ContextID(path)
	meta := types.DocumentMetadata{
		ContextID:    contextID,
		LastModified: modTime,
	}

	content = strings.TrimPrefix(content, "\ufeff")

	hdr, body, err := parseHeader(content)
	if err != nil {
		meta.Title = TitleFromFilename(path)
		meta.Tags = []string{contextID}
		meta.Degraded = true
		return meta, body, fmt.Errorf("%w: %s: %w", types.ErrMetadataExtraction, filepath.Base(path), err)
	}

	meta.Title = hdr.Title
	if meta.Title == "" {
		meta.Title = firstHeading(body)
	}
	if meta.Title == "" {
		meta.Title = TitleFromFilename(path)
	}

	tags := make([]string, 0, len(hdr.Tags)+4)
	tags = append(tags, hdr.Tags...)
	tags = append(tags, Hashtags(body)...)
	tags = append(tags, contextID)
	meta.Tags = normalizeTags(tags)

	return meta, body, nil
}

// parseHeader splits off and decodes an optional YAML header block. When the
// block is malformed the body excludes it if its end marker was found.
func parseHeader(content string) (header, string, error) {
	var hdr header

	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t\r\n") != HeaderMarker {
		return hdr, content, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t\r\n")
		if line == HeaderMarker || line == "..." {
			end = i
			break
		}
	}
	if end < 0 {
		return hdr, content, errUnterminatedHeader
	}

	block := strings.Join(lines[1:end], "")
	body := strings.Join(lines[end+1:], "")

	if strings.TrimSpace(block) == "" {
		return hdr, body, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return hdr, body, fmt.Errorf("invalid header: %w", err)
	}

	if v, ok := raw["title"]; ok && v != nil {
		hdr.Title = strings.TrimSpace(fmt.Sprint(v))
	}

	switch v := raw["tags"].(type) {
	case nil:
	case string:
		hdr.Tags = append(hdr.Tags, strings.Split(v, ",")...)
	case []any:
		for _, tag := range v {
			if tag != nil {
				hdr.Tags = append(hdr.Tags, fmt.Sprint(tag))
			}
		}
	default:
		return hdr, body, fmt.Errorf("invalid header: tags must be a list or string, got %T", v)
	}

	return hdr, body, nil
}

// firstHeading returns the text of the first top-level heading
func firstHeading(body string) string {
	m := headingPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Hashtags returns inline #tag tokens from the body, in order of appearance.
// Headings ("# Title") are not tags.
func Hashtags(body string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(body, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags
}

// ContextID is the name of the document's immediate parent directory
func ContextID(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// TitleFromFilename derives a title from the file name: extension removed,
// underscores and dashes replaced by spaces.
func TitleFromFilename(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return base
	}
	return name
}

// normalizeTags trims, de-duplicates and sorts tags
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
