// file: internal/database/sqlite_store.go
// version: 2.0.0
// guid: 5b6c7d8e-9f0a-1b2c-3d4e-5f6a7b8c9d0e

package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/opencatalog/streamvault/internal/catalog"
)

// SQLiteStore implements the Store interface on a single key/value table.
// It exists for deployments that cannot carry PebbleDB's on-disk format and
// must be explicitly enabled (see Open).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		PRIMARY KEY (collection, key)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put overwrites one record.
func (s *SQLiteStore) Put(col catalog.Collection, key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO records (collection, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value`,
		string(col), key, value)
	return storageErr("put", err)
}

// Get reads one record. Missing keys return (nil, false, nil).
func (s *SQLiteStore) Get(col catalog.Collection, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(
		`SELECT value FROM records WHERE collection = ? AND key = ?`,
		string(col), key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get", err)
	}
	return value, true, nil
}

// Keys lists the keys in one collection with the given prefix, sorted.
func (s *SQLiteStore) Keys(col catalog.Collection, prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM records WHERE collection = ? AND key LIKE ? || '%' ORDER BY key`,
		string(col), prefix)
	if err != nil {
		return nil, storageErr("keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storageErr("keys", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("keys", err)
	}
	return keys, nil
}

// Delete removes one record. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(col catalog.Collection, key string) error {
	_, err := s.db.Exec(
		`DELETE FROM records WHERE collection = ? AND key = ?`, string(col), key)
	return storageErr("delete", err)
}

// Clear removes every record in one collection.
func (s *SQLiteStore) Clear(col catalog.Collection) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE collection = ?`, string(col))
	return storageErr("clear", err)
}

// ClearAll wipes the store.
func (s *SQLiteStore) ClearAll() error {
	_, err := s.db.Exec(`DELETE FROM records`)
	return storageErr("clear all", err)
}

// ImportSnapshot applies the whole import in one transaction, so a partial
// catalog is never queryable.
func (s *SQLiteStore) ImportSnapshot(snap *catalog.Snapshot) error {
	writes, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("import", err)
	}
	for col, kvs := range writes {
		for key, value := range kvs {
			if _, err := tx.Exec(
				`INSERT INTO records (collection, key, value) VALUES (?, ?, ?)
				 ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value`,
				string(col), key, value); err != nil {
				tx.Rollback()
				return storageErr("import", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("import", err)
	}
	return nil
}
