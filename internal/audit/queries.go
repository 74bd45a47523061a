package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"cargohold/internal/constants"
)

// Filter narrows a security event query. Zero values mean "no filter".
type Filter struct {
	EventType string
	SubjectID string
	Outcome   string
	Before    int64 // exclusive upper bound on timestamp
	Limit     int
}

// Query returns security events matching the filter, newest first.
func (r *Recorder) Query(filter Filter) ([]Entry, error) {
	query := `
		SELECT id, timestamp, event_type, subject_id, outcome, message, details_json
		FROM security_events`

	var conditions []string
	var args []interface{}

	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if filter.Before > 0 {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.Before)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detailsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.SubjectID,
			&e.Outcome, &e.Message, &detailsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if detailsJSON.Valid {
			var details interface{}
			if err := json.Unmarshal([]byte(detailsJSON.String), &details); err == nil {
				e.Details = details
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountBySubject returns how many events exist for a subject. Used by tests
// and the admin listing endpoint.
func (r *Recorder) CountBySubject(subjectID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM security_events WHERE subject_id = ?`, subjectID).Scan(&count)
	return count, err
}
