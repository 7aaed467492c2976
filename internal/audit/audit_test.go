package audit

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"syncline/internal/domain"
)

type captureStore struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
	err     error
	block   chan struct{}
}

func (s *captureStore) InsertAuditEntry(ctx context.Context, e domain.AuditLogEntry) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return s.err
}

func (s *captureStore) all() []domain.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLogEntry(nil), s.entries...)
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRecordFillsDefaults(t *testing.T) {
	store := &captureStore{}
	l := New(store, quiet(), 4)
	l.Record(domain.AuditLogEntry{Action: "pushProjectUpdate", EntityType: "project", EntityID: "p1"})
	l.Close()

	entries := store.all()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	e := entries[0]
	if e.ID == "" || e.CreatedAt == "" {
		t.Fatalf("id/created_at not filled: %+v", e)
	}
	if e.ActionCategory != CategoryIntegration || e.ActorID != "system" {
		t.Fatalf("defaults = %+v", e)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	store := &captureStore{}
	l := New(store, quiet(), 64)
	for i := 0; i < 50; i++ {
		l.Record(domain.AuditLogEntry{Action: "fullSync", EntityType: "project"})
	}
	l.Close()
	if got := len(store.all()); got != 50 {
		t.Fatalf("drained = %d, want 50", got)
	}
}

func TestRecordNeverBlocksWhenFull(t *testing.T) {
	store := &captureStore{block: make(chan struct{})}
	l := New(store, quiet(), 1)

	// One entry occupies the writer, one fills the queue; the rest must be
	// dropped without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			l.Record(domain.AuditLogEntry{Action: "addNote", EntityType: "ticket"})
		}
		close(done)
	}()
	<-done
	close(store.block)
	l.Close()
	if got := len(store.all()); got > 2 {
		t.Fatalf("stored = %d, want at most 2 (rest dropped)", got)
	}
}

func TestRecordAfterCloseDrops(t *testing.T) {
	store := &captureStore{}
	l := New(store, quiet(), 4)
	l.Close()
	l.Record(domain.AuditLogEntry{Action: "link", EntityType: "project"})
	if len(store.all()) != 0 {
		t.Fatalf("closed logger must drop entries")
	}
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	store := &captureStore{err: errors.New("disk full")}
	l := New(store, quiet(), 4)
	l.Record(domain.AuditLogEntry{Action: "unlink", EntityType: "project"})
	l.Close()
	// No panic and no propagation; the entry was attempted once.
	if len(store.all()) != 1 {
		t.Fatalf("attempts = %d", len(store.all()))
	}
}

func TestDetail(t *testing.T) {
	if Detail(nil) != "{}" {
		t.Fatalf("nil payload should encode as empty object")
	}
	got := Detail(map[string]any{"outcome": "success"})
	if got != `{"outcome":"success"}` {
		t.Fatalf("detail = %s", got)
	}
}
