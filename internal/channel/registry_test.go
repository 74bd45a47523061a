package channel

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	s := &Session{ID: "s1", SubjectID: "subj-1"}
	r.Register(s)
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}

	r.Unregister("s1")
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}

	// Unregistering an unknown id is a no-op.
	r.Unregister("missing")
}

func TestRegistryForEach(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Register(&Session{ID: fmt.Sprintf("s%d", i), SubjectID: "subj-1"})
	}

	seen := 0
	r.ForEach(func(s *Session) {
		seen++
		// Mutating the registry from the callback must not deadlock; the
		// iteration runs over a snapshot.
		r.Unregister(s.ID)
	})
	if seen != 5 {
		t.Errorf("visited %d sessions, want 5", seen)
	}
	if r.Count() != 0 {
		t.Errorf("count = %d after unregistering all", r.Count())
	}
}

func TestRegistryDrain(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	reasons := make(map[string]CloseReason)

	for i := 0; i < 3; i++ {
		s := &Session{ID: fmt.Sprintf("s%d", i), SubjectID: "subj-1"}
		id := s.ID
		s.setCloser(func(reason CloseReason) {
			mu.Lock()
			reasons[id] = reason
			mu.Unlock()
			r.Unregister(id)
		})
		r.Register(s)
	}

	r.Drain(ReasonShutdown)

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 3 {
		t.Fatalf("drained %d sessions, want 3", len(reasons))
	}
	for id, reason := range reasons {
		if reason != ReasonShutdown {
			t.Errorf("session %s drained with %s, want shutdown", id, reason)
		}
	}
	if r.Count() != 0 {
		t.Errorf("count = %d after drain", r.Count())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n)
			r.Register(&Session{ID: id, SubjectID: "subj-1"})
			r.Count()
			r.ForEach(func(*Session) {})
			r.Unregister(id)
		}(i)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("count = %d after concurrent churn", r.Count())
	}
}
