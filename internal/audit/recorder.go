package audit

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"cargohold/internal/constants"
	"cargohold/internal/logger"
)

// subscription wraps a channel with safe closure tracking to prevent
// "send on closed channel" panics during concurrent unsubscribe/notify.
type subscription struct {
	ch       chan Entry
	closedMu sync.Mutex
	closed   bool
}

// trySend safely sends an entry, returning false if channel is closed or full.
func (s *subscription) trySend(entry Entry) bool {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- entry:
		return true
	default:
		return false // channel full, skip
	}
}

func (s *subscription) close() {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Recorder is the security event sink: thread-safe, append-only, with
// pub/sub for live streaming. Record is best-effort by contract: a failure
// to persist never blocks or alters an authorization decision; it is logged
// locally and the caller proceeds.
type Recorder struct {
	db          *sql.DB
	log         *logger.Logger
	mu          sync.Mutex
	subscribers map[chan Entry]*subscription
	subMu       sync.RWMutex
	stopClean   chan struct{}

	maxLogSizeBytes int64
	purgePercentage int
}

// NewRecorder creates a security event recorder and starts the size-limit
// cleanup goroutine.
func NewRecorder(db *sql.DB, log *logger.Logger, maxLogSizeBytes int64, purgePercentage int) *Recorder {
	r := &Recorder{
		db:              db,
		log:             log,
		subscribers:     make(map[chan Entry]*subscription),
		stopClean:       make(chan struct{}),
		maxLogSizeBytes: maxLogSizeBytes,
		purgePercentage: purgePercentage,
	}

	go r.cleanupLoop()

	return r
}

// Stop stops the cleanup goroutine (call during graceful shutdown).
func (r *Recorder) Stop() {
	close(r.stopClean)
}

// Record appends a security event. Best-effort: persistence failures are
// logged locally and swallowed so the authorization path is never blocked.
func (r *Recorder) Record(eventType, subjectID, outcome, message string, details interface{}) {
	if !IsValidEventType(eventType) {
		r.log.Error("audit: invalid event type %q dropped", eventType)
		return
	}

	var detailsJSON sql.NullString
	if details != nil {
		jsonBytes, err := json.Marshal(details)
		if err != nil {
			r.log.Error("audit: failed to marshal details for %s: %v", eventType, err)
		} else {
			detailsJSON = sql.NullString{String: string(jsonBytes), Valid: true}
		}
	}

	timestamp := time.Now().Unix()

	r.mu.Lock()
	result, err := r.db.Exec(`
		INSERT INTO security_events (timestamp, event_type, subject_id, outcome, message, details_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, timestamp, eventType, subjectID, outcome, message, detailsJSON)
	r.mu.Unlock()

	var id int64
	if err != nil {
		r.log.Error("audit: failed to persist %s event for %s: %v", eventType, subjectID, err)
	} else {
		id, _ = result.LastInsertId()
	}

	// Notify subscribers regardless of persistence outcome; the live
	// stream is advisory, the table is the durable record.
	r.notifySubscribers(Entry{
		ID:        id,
		Timestamp: timestamp,
		EventType: eventType,
		SubjectID: subjectID,
		Outcome:   outcome,
		Message:   message,
		Details:   details,
	})
}

// Subscribe returns a channel that receives new security events.
func (r *Recorder) Subscribe() chan Entry {
	ch := make(chan Entry, constants.AuditStreamBufferSize)
	sub := &subscription{ch: ch}
	r.subMu.Lock()
	r.subscribers[ch] = sub
	r.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (r *Recorder) Unsubscribe(ch chan Entry) {
	r.subMu.Lock()
	if sub, exists := r.subscribers[ch]; exists {
		delete(r.subscribers, ch)
		sub.close()
	}
	r.subMu.Unlock()
}

func (r *Recorder) notifySubscribers(entry Entry) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	for _, sub := range r.subscribers {
		sub.trySend(entry)
	}
}

// cleanupLoop periodically enforces the log size limit.
func (r *Recorder) cleanupLoop() {
	ticker := time.NewTicker(time.Duration(constants.AuditCleanupIntervalMins) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopClean:
			return
		case <-ticker.C:
			r.enforceLogSizeLimit()
		}
	}
}

// enforceLogSizeLimit purges oldest entries when the database exceeds the
// configured size.
func (r *Recorder) enforceLogSizeLimit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pageCount, pageSize int64
	if err := r.db.QueryRow("SELECT page_count FROM pragma_page_count()").Scan(&pageCount); err != nil {
		return
	}
	if err := r.db.QueryRow("SELECT page_size FROM pragma_page_size()").Scan(&pageSize); err != nil {
		return
	}

	if pageCount*pageSize < r.maxLogSizeBytes {
		return
	}

	var totalEntries int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM security_events").Scan(&totalEntries); err != nil {
		return
	}

	purgeCount := totalEntries * int64(r.purgePercentage) / 100
	if purgeCount < int64(constants.AuditMinPurgeEntries) {
		purgeCount = int64(constants.AuditMinPurgeEntries)
	}
	if purgeCount > totalEntries {
		purgeCount = totalEntries / 2
	}
	if purgeCount <= 0 {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		DELETE FROM security_events
		WHERE id IN (
			SELECT id FROM security_events
			ORDER BY id ASC
			LIMIT ?
		)
	`, purgeCount)
	if err != nil {
		return
	}

	tx.Commit()
}
