// Package transfer maintains the index of stored objects: which hashes
// exist, how large they are, and where they came from. The bytes themselves
// live in the object store; this package only tracks metadata.
package transfer

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotIndexed = errors.New("transfer not indexed")

// Entry describes one stored object.
type Entry struct {
	Hash       string `json:"hash"`
	Size       int64  `json:"size"`
	OriginName string `json:"origin_name"`
	UploadedBy string `json:"uploaded_by"`
	CreatedAt  int64  `json:"created_at"`
}

// Index is the sqlite-backed transfer metadata index.
type Index struct {
	db *sql.DB
}

func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// Add records a stored object. Re-adding an existing hash refreshes the
// origin name but keeps the original upload record otherwise.
func (i *Index) Add(hash string, size int64, originName, uploadedBy string) (*Entry, error) {
	now := time.Now().Unix()
	_, err := i.db.Exec(`
		INSERT INTO transfer_index (hash, size, origin_name, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET origin_name = excluded.origin_name`,
		hash, size, originName, uploadedBy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to index transfer: %w", err)
	}
	return i.Get(hash)
}

// Get returns the index entry for a hash.
func (i *Index) Get(hash string) (*Entry, error) {
	row := i.db.QueryRow(`
		SELECT hash, size, origin_name, uploaded_by, created_at
		FROM transfer_index WHERE hash = ?`, hash)

	var e Entry
	err := row.Scan(&e.Hash, &e.Size, &e.OriginName, &e.UploadedBy, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer index: %w", err)
	}
	return &e, nil
}

// List returns indexed transfers, newest first, capped at limit.
func (i *Index) List(limit int) ([]Entry, error) {
	rows, err := i.db.Query(`
		SELECT hash, size, origin_name, uploaded_by, created_at
		FROM transfer_index ORDER BY created_at DESC, hash LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.Size, &e.OriginName, &e.UploadedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of indexed transfers.
func (i *Index) Count() (int64, error) {
	var n int64
	err := i.db.QueryRow(`SELECT COUNT(*) FROM transfer_index`).Scan(&n)
	return n, err
}
