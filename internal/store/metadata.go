package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/codeindex/codeindex/internal/chunk"
)

// SQLiteMetadataStore implements MetadataStore over the code_chunks and
// file_metadata tables, using whichever SQLite driver this build was
// compiled with (see metadata_cgo.go / metadata_nocgo.go).
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// validateSQLiteIntegrity checks an existing database file before opening
// it for real, auto-clearing it if corrupt rather than failing outright.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(sqlDriverName, path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='code_chunks'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}

	return nil
}

// NewSQLiteMetadataStore opens (creating if absent) the metadata database
// at path, using WAL mode for safe concurrent reads during indexing.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if validErr := validateSQLiteIntegrity(path); validErr != nil {
		slog.Warn("metadata_store_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))

		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, fmt.Errorf("metadata store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
		}
		_ = os.Remove(path + "-wal")
		_ = os.Remove(path + "-shm")

		slog.Info("metadata_store_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, reindex required"))
	}

	db, err := sql.Open(sqlDriverName, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteMetadataStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS code_chunks (
		id TEXT PRIMARY KEY,
		filepath TEXT NOT NULL,
		content TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		language TEXT NOT NULL,
		symbol_kind TEXT,
		symbol_name TEXT,
		vector BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_code_chunks_filepath ON code_chunks(filepath);

	CREATE TABLE IF NOT EXISTS file_metadata (
		filepath TEXT PRIMARY KEY,
		mtime_ms INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// encodeVector serializes a float32 slice as a little-endian blob.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func (s *SQLiteMetadataStore) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_chunks
			(id, filepath, content, start_line, end_line, language, symbol_kind, symbol_name, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filepath=excluded.filepath, content=excluded.content,
			start_line=excluded.start_line, end_line=excluded.end_line,
			language=excluded.language, symbol_kind=excluded.symbol_kind,
			symbol_name=excluded.symbol_name, vector=excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.FilePath, c.Content, c.StartLine, c.EndLine,
			c.Language, string(c.SymbolKind), c.SymbolName, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func scanChunk(row interface {
	Scan(dest ...any) error
}) (*chunk.Chunk, error) {
	var c chunk.Chunk
	var symbolKind, symbolName sql.NullString
	var vectorBlob []byte

	if err := row.Scan(&c.ID, &c.FilePath, &c.Content, &c.StartLine, &c.EndLine,
		&c.Language, &symbolKind, &symbolName, &vectorBlob); err != nil {
		return nil, err
	}

	c.SymbolKind = chunk.SymbolKind(symbolKind.String)
	c.SymbolName = symbolName.String
	c.Embedding = decodeVector(vectorBlob)
	return &c, nil
}

func (s *SQLiteMetadataStore) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, filepath, content, start_line, end_line, language, symbol_kind, symbol_name, vector
		FROM code_chunks WHERE id = ?`, id)

	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, filepath, content, start_line, end_line, language, symbol_kind, symbol_name, vector
		FROM code_chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) GetChunksByFilePath(ctx context.Context, filePath string) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filepath, content, start_line, end_line, language, symbol_kind, symbol_name, vector
		FROM code_chunks WHERE filepath = ? ORDER BY start_line ASC`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks for %s: %w", filePath, err)
	}
	defer rows.Close()

	var out []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) DeleteChunksByFilePath(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM code_chunks WHERE filepath = ?`, filePath)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", filePath, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) DropChunks(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM code_chunks`)
	if err != nil {
		return fmt.Errorf("failed to drop chunks: %w", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("metadata store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *SQLiteMetadataStore) SaveFileMetadata(ctx context.Context, metas []FileMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata`); err != nil {
		return fmt.Errorf("failed to clear file metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO file_metadata (filepath, mtime_ms) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metas {
		if _, err := stmt.ExecContext(ctx, m.FilePath, m.MtimeMs); err != nil {
			return fmt.Errorf("failed to save file metadata for %s: %w", m.FilePath, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteMetadataStore) GetFileMetadata(ctx context.Context) ([]FileMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT filepath, mtime_ms FROM file_metadata ORDER BY filepath ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query file metadata: %w", err)
	}
	defer rows.Close()

	var out []FileMeta
	for rows.Next() {
		var m FileMeta
		if err := rows.Scan(&m.FilePath, &m.MtimeMs); err != nil {
			return nil, fmt.Errorf("failed to scan file metadata: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) FileMetadataCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("metadata store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_metadata`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count file metadata: %w", err)
	}
	return count, nil
}

func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// FileMetadataChecksum computes the stable hash referenced by
// IndexDescriptor.Checksum: a SHA-256 over the sorted (filepath, mtime)
// pairs. Exposed as a helper so C8/C9 can compare it against the stored
// descriptor without duplicating the hashing logic.
func FileMetadataChecksum(metas []FileMeta) string {
	sorted := make([]FileMeta, len(metas))
	copy(sorted, metas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FilePath < sorted[j].FilePath })

	var buf bytes.Buffer
	for _, m := range sorted {
		fmt.Fprintf(&buf, "%s:%d\n", m.FilePath, m.MtimeMs)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
