package authority

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store provides database operations for the authority records.
type Store struct {
	db *sql.DB
}

// NewStore creates a new authority store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Lookup resolves a subject reference to its current authority record.
// The reference is tried as the primary key (subject id) first; only when
// the primary lookup misses is it tried as the secondary key (username).
// The first match wins; results are never merged across keys.
//
// Returns ErrNotFound when both keys miss, or an error wrapping
// ErrUnavailable for transient store failures.
func (s *Store) Lookup(ctx context.Context, ref string) (*Record, error) {
	rec, err := s.lookupBy(ctx, "id", ref)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return s.lookupBy(ctx, "username", ref)
}

func (s *Store) lookupBy(ctx context.Context, column, value string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, role, is_active FROM subjects WHERE `+column+` = ?
	`, value).Scan(&rec.SubjectID, &rec.Username, &rec.Role, &rec.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &rec, nil
}

// classify maps a database error to the transient ErrUnavailable family.
// Every non-NoRows failure (busy database, context deadline, closed
// connection) is treated as transient: the caller's retry budget bounds how
// long we keep trying before failing closed.
func classify(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// ============================================================================
// Mutation surface (account management)
// ============================================================================

// CreateSubject inserts a new subject with a generated id.
func (s *Store) CreateSubject(username, displayName, role string) (*Subject, error) {
	now := time.Now().Unix()
	id := uuid.NewString()

	_, err := s.db.Exec(`
		INSERT INTO subjects (id, username, display_name, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, id, username, displayName, role, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrSubjectExists
		}
		return nil, fmt.Errorf("failed to create subject: %w", err)
	}

	return &Subject{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetSubject retrieves a subject by id.
func (s *Store) GetSubject(id string) (*Subject, error) {
	return s.scanSubject(s.db.QueryRow(`
		SELECT id, username, display_name, role, is_active, created_at, updated_at
		FROM subjects WHERE id = ?
	`, id))
}

// GetSubjectByUsername retrieves a subject by username.
func (s *Store) GetSubjectByUsername(username string) (*Subject, error) {
	return s.scanSubject(s.db.QueryRow(`
		SELECT id, username, display_name, role, is_active, created_at, updated_at
		FROM subjects WHERE username = ?
	`, username))
}

// ListSubjects returns all subjects ordered by creation time.
func (s *Store) ListSubjects() ([]Subject, error) {
	rows, err := s.db.Query(`
		SELECT id, username, display_name, role, is_active, created_at, updated_at
		FROM subjects ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		var sub Subject
		if err := rows.Scan(&sub.ID, &sub.Username, &sub.DisplayName, &sub.Role,
			&sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// SetRole updates a subject's role. Open admin sessions pick this up on
// their next re-verification tick.
func (s *Store) SetRole(id, role string) error {
	return s.update(id, `UPDATE subjects SET role = ?, updated_at = ? WHERE id = ?`, role)
}

// SetActive enables or disables a subject.
func (s *Store) SetActive(id string, active bool) error {
	return s.update(id, `UPDATE subjects SET is_active = ?, updated_at = ? WHERE id = ?`, active)
}

func (s *Store) update(id, query string, value interface{}) error {
	now := time.Now().Unix()
	result, err := s.db.Exec(query, value, now, id)
	if err != nil {
		return fmt.Errorf("failed to update subject: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSubjects returns the total number of subjects.
func (s *Store) CountSubjects() (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM subjects`).Scan(&count)
	return count, err
}

func (s *Store) scanSubject(row *sql.Row) (*Subject, error) {
	var sub Subject
	err := row.Scan(&sub.ID, &sub.Username, &sub.DisplayName, &sub.Role,
		&sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
