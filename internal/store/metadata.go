package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// FileRecord is what the last successful build knew about one file.
type FileRecord struct {
	Path      string
	Hash      string
	ChunkIDs  []string
	IndexedAt time.Time
}

// BuildRecord is the outcome of one build.
type BuildRecord struct {
	ID            string
	SourceID      string
	GitURL        string
	Status        string
	Message       string
	TotalFiles    int
	UpdatedChunks int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// BuildCompleted is the BuildRecord status of a successful build.
const BuildCompleted = "Completed"

// MetadataStore keeps per-source file hashes and build history in SQLite.
type MetadataStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// OpenMetadata opens or creates the metadata database at path. An empty
// path keeps it in memory.
func OpenMetadata(path string) (*MetadataStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	// One connection: the in-memory database lives per connection, and
	// SQLite has a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	m := &MetadataStore{db: db}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize metadata schema: %w", err)
	}
	return m, nil
}

func (m *MetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		source_id  TEXT NOT NULL,
		path       TEXT NOT NULL,
		hash       TEXT NOT NULL,
		chunk_ids  TEXT NOT NULL,
		indexed_at INTEGER NOT NULL,
		PRIMARY KEY (source_id, path)
	);

	CREATE TABLE IF NOT EXISTS builds (
		id             TEXT PRIMARY KEY,
		source_id      TEXT NOT NULL,
		git_url        TEXT NOT NULL,
		status         TEXT NOT NULL,
		message        TEXT NOT NULL DEFAULT '',
		total_files    INTEGER NOT NULL DEFAULT 0,
		updated_chunks INTEGER NOT NULL DEFAULT 0,
		started_at     INTEGER NOT NULL,
		finished_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sources (
		source_id  TEXT PRIMARY KEY,
		generation TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_builds_source ON builds(source_id, status, finished_at);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := m.db.Exec(schema)
	return err
}

var errMetadataClosed = errors.New("metadata store is closed")

// Files returns the file records of a source keyed by path.
func (m *MetadataStore) Files(ctx context.Context, sourceID string) (map[string]FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errMetadataClosed
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT path, hash, chunk_ids, indexed_at FROM files WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]FileRecord)
	for rows.Next() {
		var (
			rec     FileRecord
			idsJSON string
			at      int64
		)
		if err := rows.Scan(&rec.Path, &rec.Hash, &idsJSON, &at); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		if err := json.Unmarshal([]byte(idsJSON), &rec.ChunkIDs); err != nil {
			return nil, fmt.Errorf("corrupt chunk ids for %s: %w", rec.Path, err)
		}
		rec.IndexedAt = time.UnixMilli(at)
		out[rec.Path] = rec
	}
	return out, rows.Err()
}

// PutFiles inserts or replaces file records of a source in one transaction.
func (m *MetadataStore) PutFiles(ctx context.Context, sourceID string, recs []FileRecord) error {
	if len(recs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMetadataClosed
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO files
		(source_id, path, hash, chunk_ids, indexed_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare file statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		ids := rec.ChunkIDs
		if ids == nil {
			ids = []string{}
		}
		idsJSON, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("failed to encode chunk ids for %s: %w", rec.Path, err)
		}
		at := rec.IndexedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, sourceID, rec.Path, rec.Hash, string(idsJSON), at.UnixMilli()); err != nil {
			return fmt.Errorf("failed to store file %s: %w", rec.Path, err)
		}
	}
	return tx.Commit()
}

// DeleteFiles removes file records of a source.
func (m *MetadataStore) DeleteFiles(ctx context.Context, sourceID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMetadataClosed
	}

	placeholders := make([]string, len(paths))
	args := make([]any, 0, len(paths)+1)
	args = append(args, sourceID)
	for i, p := range paths {
		placeholders[i] = "?"
		args = append(args, p)
	}
	q := fmt.Sprintf("DELETE FROM files WHERE source_id = ? AND path IN (%s)", strings.Join(placeholders, ","))
	if _, err := m.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

// Generation returns the index generation the file records of sourceID were
// written against, or "" when none is recorded.
func (m *MetadataStore) Generation(ctx context.Context, sourceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errMetadataClosed
	}

	var gen string
	err := m.db.QueryRowContext(ctx, "SELECT generation FROM sources WHERE source_id = ?", sourceID).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read generation: %w", err)
	}
	return gen, nil
}

// ResetSource forgets every file record of sourceID and ties the source to
// generation, in one transaction.
func (m *MetadataStore) ResetSource(ctx context.Context, sourceID, generation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMetadataClosed
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE source_id = ?", sourceID); err != nil {
		return fmt.Errorf("failed to clear files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sources (source_id, generation) VALUES (?, ?)
		ON CONFLICT(source_id) DO UPDATE SET generation = excluded.generation`, sourceID, generation); err != nil {
		return fmt.Errorf("failed to store generation: %w", err)
	}
	return tx.Commit()
}

// RecordBuild stores the outcome of a build.
func (m *MetadataStore) RecordBuild(ctx context.Context, b BuildRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMetadataClosed
	}

	_, err := m.db.ExecContext(ctx, `INSERT OR REPLACE INTO builds
		(id, source_id, git_url, status, message, total_files, updated_chunks, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SourceID, b.GitURL, b.Status, b.Message, b.TotalFiles, b.UpdatedChunks,
		b.StartedAt.UnixMilli(), b.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record build %s: %w", b.ID, err)
	}
	return nil
}

// LastCompleted returns when the most recent successful build of a source
// finished. ok is false when there was none.
func (m *MetadataStore) LastCompleted(ctx context.Context, sourceID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return time.Time{}, false, errMetadataClosed
	}

	var at sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT MAX(finished_at) FROM builds WHERE source_id = ? AND status = ?`,
		sourceID, BuildCompleted).Scan(&at)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query builds: %w", err)
	}
	if !at.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(at.Int64), true, nil
}

// Builds returns the most recent builds of a source, newest first.
func (m *MetadataStore) Builds(ctx context.Context, sourceID string, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errMetadataClosed
	}

	rows, err := m.db.QueryContext(ctx, `SELECT id, source_id, git_url, status, message,
		total_files, updated_chunks, started_at, finished_at
		FROM builds WHERE source_id = ? ORDER BY finished_at DESC LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			b                 BuildRecord
			started, finished int64
		)
		if err := rows.Scan(&b.ID, &b.SourceID, &b.GitURL, &b.Status, &b.Message,
			&b.TotalFiles, &b.UpdatedChunks, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan build row: %w", err)
		}
		b.StartedAt = time.UnixMilli(started)
		b.FinishedAt = time.UnixMilli(finished)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close closes the database. It is safe to call more than once.
func (m *MetadataStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.db != nil {
		_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return m.db.Close()
	}
	return nil
}
