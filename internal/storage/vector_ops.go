package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// candidate is a ranked record reference produced by one search leg
type candidate struct {
	seq   int64
	score float64
}

// hybridOverfetch widens each leg so fusion has enough overlap to work with
const hybridOverfetch = 3

// searchHybrid runs both legs concurrently and fuses them with RRF
func (s *SQLiteIndex) searchHybrid(ctx context.Context, q Query) ([]candidate, error) {
	limit := q.TopK * hybridOverfetch

	var textHits, vectorHits []candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		textHits, err = s.searchText(gctx, q.Text, limit, q.Filter)
		return err
	})
	g.Go(func() error {
		var err error
		vectorHits, err = s.searchVector(gctx, q.Vector, limit, q.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuseRRF(q.RRFConstant, q.TopK, textHits, vectorHits), nil
}

// fuseRRF combines ranked lists: score = sum over lists of 1/(k + rank)
func fuseRRF(k, limit int, lists ...[]candidate) []candidate {
	scores := make(map[int64]float64)
	for _, list := range lists {
		for i, c := range list {
			scores[c.seq] += 1.0 / float64(k+i+1)
		}
	}

	fused := make([]candidate, 0, len(scores))
	for seq, score := range scores {
		fused = append(fused, candidate{seq: seq, score: score})
	}
	sortCandidates(fused)
	return truncate(fused, limit)
}

// searchVector ranks records by cosine similarity to vec
func (s *SQLiteIndex) searchVector(ctx context.Context, vec []float32, limit int, filter *types.SearchFilter) ([]candidate, error) {
	if VectorExtensionAvailable {
		hits, err := s.searchVectorOptimized(ctx, vec, limit, filter)
		if err == nil {
			return hits, nil
		}
		// The driver is present but the extension was not loaded
		s.logger.Debug("vec_distance_cosine unavailable, using Go cosine", zap.Error(err))
	}
	return s.searchVectorFallback(ctx, vec, limit, filter)
}

// searchVectorOptimized computes distances in SQL with the sqlite-vec extension
func (s *SQLiteIndex) searchVectorOptimized(ctx context.Context, vec []float32, limit int, filter *types.SearchFilter) ([]candidate, error) {
	blob := serializeVector(vec)
	query := `
		SELECT r.seq, 1.0 - vec_distance_cosine(r.vector, ?) AS similarity
		FROM records r
		WHERE r.vector IS NOT NULL AND r.dimension = ?`
	args := []interface{}{blob, len(vec)}
	query, args = applyFilter(query, args, filter)
	query += " ORDER BY similarity DESC, r.seq LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]candidate, 0, limit)
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.seq, &c.score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, c)
	}
	return hits, rows.Err()
}

// searchVectorFallback loads candidate vectors and scores them in Go
func (s *SQLiteIndex) searchVectorFallback(ctx context.Context, vec []float32, limit int, filter *types.SearchFilter) ([]candidate, error) {
	query := `
		SELECT r.seq, r.vector
		FROM records r
		WHERE r.vector IS NOT NULL`
	query, args := applyFilter(query, nil, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]candidate, 0)
	for rows.Next() {
		var (
			seq  int64
			blob []byte
		)
		if err := rows.Scan(&seq, &blob); err != nil {
			return nil, err
		}
		stored := deserializeVector(blob)
		if len(stored) != len(vec) {
			continue // written under a different embedding model
		}
		hits = append(hits, candidate{seq: seq, score: cosineSimilarity(vec, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(hits)
	return truncate(hits, limit), nil
}

// searchText ranks records with FTS5 bm25 over content and title
func (s *SQLiteIndex) searchText(ctx context.Context, text string, limit int, filter *types.SearchFilter) ([]candidate, error) {
	match := buildMatchQuery(text)
	if match == "" {
		return nil, ErrEmptyQuery
	}

	query := `
		SELECT r.seq, bm25(records_fts) AS score
		FROM records_fts
		INNER JOIN records r ON r.seq = records_fts.rowid
		WHERE records_fts MATCH ?`
	args := []interface{}{match}
	query, args = applyFilter(query, args, filter)
	query += " ORDER BY score, r.seq LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]candidate, 0)
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.seq, &c.score); err != nil {
			return nil, err
		}
		// bm25 is lower-is-better and negative; flip it so higher wins everywhere
		c.score = -c.score
		hits = append(hits, c)
	}
	return hits, rows.Err()
}

// applyFilter appends the metadata filter to a query over records aliased as r.
// Both legs use it so every mode filters the same way.
func applyFilter(query string, args []interface{}, filter *types.SearchFilter) (string, []interface{}) {
	if filter.IsEmpty() {
		return query, args
	}

	if filter.ContextID != "" {
		query += " AND r.context_id = ?"
		args = append(args, filter.ContextID)
	}
	if filter.FileName != "" {
		query += " AND r.file_name GLOB ?"
		args = append(args, filter.FileName)
	}
	if filter.ChunkPattern != "" {
		query += " AND r.chunk_key GLOB ?"
		args = append(args, filter.ChunkPattern)
	}
	for _, tag := range filter.Tags {
		query += " AND EXISTS (SELECT 1 FROM record_tags t WHERE t.record_id = r.id AND t.tag = ?)"
		args = append(args, tag)
	}
	return query, args
}

// buildMatchQuery turns free text into an FTS5 expression of quoted terms
// joined by OR. Quoting neutralizes FTS5 operators and punctuation.
func buildMatchQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity returns 0 for mismatched or zero-norm vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortCandidates orders by score descending, then by insertion order
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})
}

func truncate(candidates []candidate, limit int) []candidate {
	if limit > 0 && len(candidates) > limit {
		return candidates[:limit]
	}
	return candidates
}
