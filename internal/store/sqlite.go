// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Uses modernc.org/sqlite by default and mattn/go-sqlite3 when the cgo driver is chosen

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go driver.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver("sqlite", path)
}

// NewSQLiteStoreWithDriver creates a SQLite store with an explicit database/sql driver
// name: "sqlite" (modernc.org/sqlite) or "sqlite3" (github.com/mattn/go-sqlite3).
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			UNIQUE(collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutDocument inserts or replaces a document by collection and id.
// A replaced document keeps its created_at and insertion position.
func (s *SQLiteStore) PutDocument(ctx context.Context, doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.Collection,
		doc.ID,
		string(doc.Data),
		doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	s.logger.Debug("put document", "collection", doc.Collection, "id", doc.ID)
	return nil
}

// AddDocument inserts a new document with a generated UUID
func (s *SQLiteStore) AddDocument(ctx context.Context, collection string, data json.RawMessage) (*Document, error) {
	doc := &Document{
		Collection: collection,
		ID:         uuid.New().String(),
		Data:       data,
	}
	if err := s.PutDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document.
// Returns ErrNotFound if the document doesn't exist.
func (s *SQLiteStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	query := `
		SELECT collection, id, data, created_at, updated_at
		FROM documents
		WHERE collection = ? AND id = ?
	`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, collection, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return doc, nil
}

// ListDocuments retrieves every document in a collection in insertion order
func (s *SQLiteStore) ListDocuments(ctx context.Context, collection string) ([]*Document, error) {
	query := `
		SELECT collection, id, data, created_at, updated_at
		FROM documents
		WHERE collection = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// DeleteDocument removes a document.
// Returns ErrNotFound if the document doesn't exist.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted document", "collection", collection, "id", id)
	return nil
}

// DeleteCollection removes every document in a collection. Deleting an empty
// collection is not an error.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, collection string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}

	n, _ := result.RowsAffected()
	s.logger.Debug("deleted collection", "collection", collection, "documents", n)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var data, createdAtStr, updatedAtStr string

	if err := row.Scan(&doc.Collection, &doc.ID, &data, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}

	doc.Data = json.RawMessage(data)

	var err error
	doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &doc, nil
}
