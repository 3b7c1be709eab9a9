package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a pure-Go (no cgo) sqlite database, one
// per name node as spec section 6 describes ("Each NN has its own
// document database"). Documents are stored as opaque JSON blobs; all
// selector matching happens in Go after decoding, since the metadata
// collections (fs, users, groups, trash) are small and this keeps the
// schema a single generic table rather than one per collection.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (creating if necessary) the sqlite database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents(collection);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Insert(ctx context.Context, collection string, doc Doc) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (collection, payload) VALUES (?, ?)`, collection, payload)
	return err
}

func (s *SQLite) UpdateOne(ctx context.Context, collection string, selector, payload Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rowid, doc, found, err := s.findLocked(ctx, collection, selector)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("store: no document in %q matches selector %v", collection, selector)
	}
	return s.writeRowLocked(ctx, rowid, mergeDoc(doc, payload))
}

func (s *SQLite) UpdateMany(ctx context.Context, collection string, selector, payload Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.allLocked(ctx, collection)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if matches(r.doc, selector) {
			if err := s.writeRowLocked(ctx, r.rowid, mergeDoc(r.doc, payload)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLite) DeleteOne(ctx context.Context, collection string, selector Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rowid, _, found, err := s.findLocked(ctx, collection, selector)
	if err != nil || !found {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM documents WHERE rowid = ?`, rowid)
	return err
}

func (s *SQLite) DeleteMany(ctx context.Context, collection string, selector Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.allLocked(ctx, collection)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if matches(r.doc, selector) {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE rowid = ?`, r.rowid); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLite) FindOne(ctx context.Context, collection string, selector Doc) (Doc, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, doc, found, err := s.findLocked(ctx, collection, selector)
	return doc, found, err
}

func (s *SQLite) FindMany(ctx context.Context, collection string, selector Doc) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.allLocked(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []Doc
	for _, r := range rows {
		if matches(r.doc, selector) {
			out = append(out, r.doc)
		}
	}
	return out, nil
}

type row struct {
	rowid int64
	doc   Doc
}

func (s *SQLite) allLocked(ctx context.Context, collection string) ([]row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rowid, payload FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", collection, err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var rowid int64
		var payload string
		if err := rows.Scan(&rowid, &payload); err != nil {
			return nil, fmt.Errorf("scan %q: %w", collection, err)
		}
		var doc Doc
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, fmt.Errorf("decode %q row %d: %w", collection, rowid, err)
		}
		out = append(out, row{rowid: rowid, doc: doc})
	}
	return out, rows.Err()
}

func (s *SQLite) findLocked(ctx context.Context, collection string, selector Doc) (int64, Doc, bool, error) {
	rows, err := s.allLocked(ctx, collection)
	if err != nil {
		return 0, nil, false, err
	}
	for _, r := range rows {
		if matches(r.doc, selector) {
			return r.rowid, r.doc, true, nil
		}
	}
	return 0, nil, false, nil
}

func (s *SQLite) writeRowLocked(ctx context.Context, rowid int64, doc Doc) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE documents SET payload = ? WHERE rowid = ?`, payload, rowid)
	return err
}
