package uploader

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// recordNamespace scopes record IDs so they never collide with other UUIDv5 users.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docsearch-mcp/records"))

// ErrMisaligned is returned when chunks and vectors differ in length
var ErrMisaligned = errors.New("chunks and vectors are not aligned")

// RecordID returns the deterministic ID for chunk index of path
func RecordID(path string, index int) string {
	return uuid.NewSHA1(recordNamespace, []byte(path+"#"+strconv.Itoa(index))).String()
}

// RecordFailure describes one record the index rejected
type RecordFailure struct {
	ID         string
	ChunkIndex int
	Err        error
}

// Result partitions one upload by record outcome
type Result struct {
	Succeeded []string
	Failed    []RecordFailure
	Pruned    int
}

// OK reports whether at least one record reached the index
func (r *Result) OK() bool {
	return r != nil && len(r.Succeeded) > 0
}

// Uploader turns chunks and their vectors into index records and writes them
type Uploader struct {
	index     storage.Index
	dimension int
	logger    *zap.Logger
}

// Option configures an Uploader
type Option func(*Uploader)

// WithDimension sets the expected vector length. Zero accepts any non-empty vector.
func WithDimension(dim int) Option {
	return func(u *Uploader) {
		if dim > 0 {
			u.dimension = dim
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// New creates an Uploader writing to index
func New(index storage.Index, opts ...Option) *Uploader {
	u := &Uploader{index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// BuildRecords produces one record per chunk. vectors may be shorter than
// chunks; missing or malformed vectors are left off the record.
func (u *Uploader) BuildRecords(doc *types.SourceDocument, chunks []types.Chunk, vectors [][]float32) []*types.IndexRecord {
	name := doc.FileName()
	records := make([]*types.IndexRecord, 0, len(chunks))

	for i, c := range chunks {
		rec := &types.IndexRecord{
			ID:           RecordID(doc.Path, c.Index),
			FilePath:     doc.Path,
			FileName:     name,
			ChunkIndex:   c.Index,
			ChunkKey:     types.ChunkKey(name, c.Index),
			Content:      c.Content,
			Title:        doc.Metadata.Title,
			ContextID:    doc.Metadata.ContextID,
			Tags:         doc.Metadata.Tags,
			LastModified: doc.Metadata.LastModified,
		}

		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		if u.validVector(vec) {
			rec.Vector = vec
		} else {
			u.logger.Warn("record uploaded without vector",
				zap.String("file", doc.Path),
				zap.Int("chunk", c.Index),
				zap.Int("got_dimension", len(vec)),
				zap.Int("want_dimension", u.dimension))
		}

		records = append(records, rec)
	}
	return records
}

func (u *Uploader) validVector(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	return u.dimension == 0 || len(vec) == u.dimension
}

// Upload writes the records for one document. The returned error is non-nil
// for misaligned input and for a failed cleanup of an emptied document;
// record failures are reported through Result.
// When every record succeeds, records left over from a longer previous
// version of the document are pruned.
func (u *Uploader) Upload(ctx context.Context, doc *types.SourceDocument, chunks []types.Chunk, vectors [][]float32) (*Result, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrMisaligned, len(chunks), len(vectors))
	}

	records := u.BuildRecords(doc, chunks, vectors)
	result := &Result{
		Succeeded: make([]string, 0, len(records)),
		Failed:    make([]RecordFailure, 0),
	}
	if len(records) == 0 {
		// Nothing left in the document; drop whatever an earlier version indexed
		pruned, err := u.index.PruneFile(ctx, doc.Path, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrUploadFailed, err)
		}
		result.Pruned = pruned
		return result, nil
	}

	outcomes, err := u.index.Upsert(ctx, records)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", types.ErrUploadFailed, err)
		for _, rec := range records {
			result.Failed = append(result.Failed, RecordFailure{ID: rec.ID, ChunkIndex: rec.ChunkIndex, Err: wrapped})
		}
		u.logger.Error("upsert failed", zap.String("file", doc.Path), zap.Error(err))
		return result, nil
	}

	for i, rec := range records {
		var outcomeErr error
		if i < len(outcomes) {
			outcomeErr = outcomes[i].Err
		} else {
			outcomeErr = errors.New("no outcome reported")
		}

		if outcomeErr == nil {
			result.Succeeded = append(result.Succeeded, rec.ID)
			continue
		}
		result.Failed = append(result.Failed, RecordFailure{
			ID:         rec.ID,
			ChunkIndex: rec.ChunkIndex,
			Err:        fmt.Errorf("%w: %w", types.ErrUploadFailed, outcomeErr),
		})
		u.logger.Warn("record rejected",
			zap.String("file", doc.Path),
			zap.Int("chunk", rec.ChunkIndex),
			zap.Error(outcomeErr))
	}

	if len(result.Failed) == 0 {
		pruned, err := u.index.PruneFile(ctx, doc.Path, len(chunks))
		if err != nil {
			u.logger.Warn("prune failed", zap.String("file", doc.Path), zap.Error(err))
		} else {
			result.Pruned = pruned
		}
	}

	return result, nil
}
