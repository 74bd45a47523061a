package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"cargohold/internal/authority"
	"cargohold/internal/credential"
	"cargohold/internal/logger"
)

var errStoreDown = errors.New("store down")

// fakeAuthority is an in-memory authority store with call counting and a
// switchable failure mode.
type fakeAuthority struct {
	mu      sync.Mutex
	records map[string]*authority.Record
	failing bool
	calls   int
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{records: make(map[string]*authority.Record)}
}

func (f *fakeAuthority) set(rec *authority.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.SubjectID] = rec
	f.records[rec.Username] = rec
}

func (f *fakeAuthority) remove(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[ref]; ok {
		delete(f.records, rec.SubjectID)
		delete(f.records, rec.Username)
	}
}

func (f *fakeAuthority) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAuthority) Lookup(ctx context.Context, ref string) (*authority.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return nil, errStoreDown
	}
	rec, ok := f.records[ref]
	if !ok {
		return nil, authority.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

// fakeSink collects recorded security events.
type fakeSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	EventType string
	SubjectID string
	Outcome   string
}

func (f *fakeSink) Record(eventType, subjectID, outcome, message string, details interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{EventType: eventType, SubjectID: subjectID, Outcome: outcome})
}

func (f *fakeSink) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeSink) countType(eventType string) int {
	n := 0
	for _, e := range f.all() {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// waitForEvent polls until an event of the given type appears or the timeout
// expires. Returns false on timeout.
func (f *fakeSink) waitForEvent(eventType string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.countType(eventType) > 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// fakeParser returns a fixed identity or error.
type fakeParser struct {
	identity *credential.Identity
	err      error
}

func (f *fakeParser) Parse(token string) (*credential.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

// readResult is one message fed into a fakeTransport.
type readResult struct {
	data []byte
	err  error
}

// fakeTransport is a scriptable transport. Reads block on the in channel
// until a message is queued or the context is cancelled.
type fakeTransport struct {
	in chan readResult

	mu                sync.Mutex
	writes            [][]byte
	closeCode         CloseCode
	closeReason       string
	closeCount        int
	closedCh          chan struct{}
	readCtx           context.Context
	closedAfterCancel bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:       make(chan readResult, 8),
		closedCh: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	t.readCtx = ctx
	t.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-t.in:
		return r.data, r.err
	}
}

func (t *fakeTransport) WriteMessage(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, data)
	return nil
}

// Close records the first close it sees. A real websocket connection that
// has already lost its read context cannot deliver a close frame anymore,
// so Close also notes whether it arrived after read cancellation.
func (t *fakeTransport) Close(code CloseCode, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCount++
	if t.closeCount == 1 {
		t.closeCode = code
		t.closeReason = reason
		if t.readCtx != nil && t.readCtx.Err() != nil {
			t.closedAfterCancel = true
		}
		close(t.closedCh)
	}
	return nil
}

func (t *fakeTransport) send(data []byte) {
	t.in <- readResult{data: data}
}

func (t *fakeTransport) failRead(err error) {
	t.in <- readResult{err: err}
}

func (t *fakeTransport) waitClosed(timeout time.Duration) bool {
	select {
	case <-t.closedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *fakeTransport) closeInfo() (CloseCode, string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCode, t.closeReason, t.closeCount
}

func (t *fakeTransport) closedAfterReadCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closedAfterCancel
}

func (t *fakeTransport) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

func testLogger() *logger.Logger {
	return logger.NewLogger("error")
}

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{
		LookupTimeout: 100 * time.Millisecond,
		Attempts:      3,
		Backoff:       time.Millisecond,
	}
}
