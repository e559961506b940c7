package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// SQLiteIndex implements Index on a local SQLite database
type SQLiteIndex struct {
	db     *sql.DB
	logger *zap.Logger
}

// Option configures a SQLiteIndex
type Option func(*SQLiteIndex)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLiteIndex) {
		if l != nil {
			s.logger = l
		}
	}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer. This also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteIndex opens (or creates) the index at dbPath and applies migrations
func NewSQLiteIndex(dbPath string, opts ...Option) (*SQLiteIndex, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteIndex{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("index opened",
		zap.String("path", dbPath),
		zap.String("build_mode", BuildMode))
	return s, nil
}

// Close closes the database connection
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Upsert writes each record inside its own savepoint so one bad record
// does not discard the others.
func (s *SQLiteIndex) Upsert(ctx context.Context, records []*types.IndexRecord) ([]UpsertOutcome, error) {
	outcomes := make([]UpsertOutcome, len(records))
	if len(records) == 0 {
		return outcomes, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, rec := range records {
		if rec == nil {
			outcomes[i] = UpsertOutcome{Err: types.ErrInvalidRecordID}
			continue
		}
		outcomes[i].ID = rec.ID
		if err := rec.Validate(); err != nil {
			outcomes[i].Err = err
			continue
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT upsert_record"); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}
		if err := upsertRecord(ctx, tx, rec); err != nil {
			outcomes[i].Err = err
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO upsert_record"); rbErr != nil {
				return nil, fmt.Errorf("failed to roll back savepoint: %w", rbErr)
			}
		}
		if _, err := tx.ExecContext(ctx, "RELEASE upsert_record"); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return outcomes, nil
}

func upsertRecord(ctx context.Context, q querier, rec *types.IndexRecord) error {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	var vector []byte
	if rec.HasVector() {
		vector = serializeVector(rec.Vector)
	}

	query := `
		INSERT INTO records (id, file_path, file_name, chunk_index, chunk_key, content,
			title, context_id, tags, last_modified, vector, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			file_name = excluded.file_name,
			chunk_index = excluded.chunk_index,
			chunk_key = excluded.chunk_key,
			content = excluded.content,
			title = excluded.title,
			context_id = excluded.context_id,
			tags = excluded.tags,
			last_modified = excluded.last_modified,
			vector = excluded.vector,
			dimension = excluded.dimension,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = q.ExecContext(ctx, query,
		rec.ID, rec.FilePath, rec.FileName, rec.ChunkIndex, rec.ChunkKey, rec.Content,
		rec.Title, rec.ContextID, string(tagsJSON), encodeTime(rec.LastModified),
		vector, len(rec.Vector),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM record_tags WHERE record_id = ?", rec.ID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO record_tags (record_id, tag) VALUES (?, ?)", rec.ID, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q: %w", tag, err)
		}
	}
	return nil
}

// Query runs the text leg, the vector leg, or both fused with RRF
func (s *SQLiteIndex) Query(ctx context.Context, q Query) ([]types.SearchResult, error) {
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.RRFConstant <= 0 {
		q.RRFConstant = DefaultRRFConstant
	}

	var (
		candidates []candidate
		err        error
	)
	switch q.Mode() {
	case "text":
		candidates, err = s.searchText(ctx, q.Text, q.TopK, q.Filter)
	case "vector":
		candidates, err = s.searchVector(ctx, q.Vector, q.TopK, q.Filter)
	case "hybrid":
		candidates, err = s.searchHybrid(ctx, q)
	default:
		return nil, ErrEmptyQuery
	}
	if err != nil {
		return nil, err
	}

	return s.hydrate(ctx, candidates)
}

// hydrate loads the records for ranked candidates, preserving order
func (s *SQLiteIndex) hydrate(ctx context.Context, candidates []candidate) ([]types.SearchResult, error) {
	if len(candidates) == 0 {
		return []types.SearchResult{}, nil
	}

	placeholders := make([]string, len(candidates))
	args := make([]interface{}, len(candidates))
	for i, c := range candidates {
		placeholders[i] = "?"
		args[i] = c.seq
	}

	query := `
		SELECT seq, id, file_path, file_name, chunk_index, title, context_id, tags, content, last_modified
		FROM records WHERE seq IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	bySeq := make(map[int64]types.SearchResult, len(candidates))
	for rows.Next() {
		var (
			seq      int64
			r        types.SearchResult
			tagsJSON string
			modified int64
		)
		if err := rows.Scan(&seq, &r.RecordID, &r.FilePath, &r.FileName, &r.ChunkIndex,
			&r.Title, &r.ContextID, &tagsJSON, &r.Content, &modified); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
			s.logger.Warn("undecodable tags on record", zap.String("id", r.RecordID), zap.Error(err))
		}
		r.LastModified = decodeTime(modified)
		bySeq[seq] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		r, ok := bySeq[c.seq]
		if !ok {
			continue // deleted between ranking and load
		}
		r.Score = c.score
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, nil
}

// Exists reports whether the records table is present
func (s *SQLiteIndex) Exists(ctx context.Context) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='records'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of records
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// ListDistinct returns the distinct values of one of the whitelisted columns
func (s *SQLiteIndex) ListDistinct(ctx context.Context, field string) ([]string, error) {
	column, ok := distinctFields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT "+column+" FROM records WHERE "+column+" <> '' ORDER BY "+column)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", field, err)
	}
	defer func() { _ = rows.Close() }()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// PruneFile removes trailing records left over from a longer previous version of path
func (s *SQLiteIndex) PruneFile(ctx context.Context, path string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE file_path = ? AND chunk_index >= ?", path, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// querier is the subset of *sql.DB and *sql.Tx used by record writes
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ Index = (*SQLiteIndex)(nil)

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
