package database

// GetServiceSchema returns the full SQL schema for the service database.
func GetServiceSchema() string {
	return `
-- ============================================================================
-- AUTHORITY STORE
-- ============================================================================

-- Subjects: the system of record for roles and active status.
-- Rows are disabled, never hard-deleted, so the security event log keeps
-- referential meaning.
CREATE TABLE IF NOT EXISTS subjects (
    id TEXT PRIMARY KEY,           -- opaque subject identifier (primary lookup key)
    username TEXT NOT NULL UNIQUE, -- human-readable identifier (secondary lookup key)
    display_name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_subjects_username ON subjects(username);
CREATE INDEX IF NOT EXISTS idx_subjects_active ON subjects(is_active);

-- ============================================================================
-- SECURITY EVENT LOG (append-only)
-- ============================================================================

CREATE TABLE IF NOT EXISTS security_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    subject_id TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    details_json TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON security_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON security_events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_subject ON security_events(subject_id);
CREATE INDEX IF NOT EXISTS idx_events_subject_timestamp ON security_events(subject_id, timestamp DESC);

-- ============================================================================
-- TRANSFER INDEX
-- ============================================================================

-- One row per stored object; the object bytes live in the content-addressed
-- object store on disk.
CREATE TABLE IF NOT EXISTS transfer_index (
    hash TEXT PRIMARY KEY,         -- BLAKE3 hash (64 hex chars)
    size INTEGER NOT NULL,
    origin_name TEXT NOT NULL DEFAULT '',
    uploaded_by TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transfer_created ON transfer_index(created_at);
`
}
