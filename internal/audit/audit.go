// Package audit records one append-only log entry per synchronization
// attempt. Writes are fire-and-forget: a full queue or a failed insert is
// logged locally and never surfaces to the operation that produced the entry.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"syncline/internal/domain"
)

// CategoryIntegration tags entries produced by the sync engine.
const CategoryIntegration = "integration"

// Store persists audit entries. repo.Repo satisfies it.
type Store interface {
	InsertAuditEntry(ctx context.Context, e domain.AuditLogEntry) error
}

type Logger struct {
	store Store
	log   *log.Logger
	queue chan domain.AuditLogEntry
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	Now func() time.Time
}

const defaultBufferSize = 256

// New starts the background writer. Close must be called to drain it.
func New(store Store, logger *log.Logger, bufferSize int) *Logger {
	if logger == nil {
		logger = log.Default()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	l := &Logger{
		store: store,
		log:   logger,
		queue: make(chan domain.AuditLogEntry, bufferSize),
		Now:   time.Now,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Logger) run() {
	defer l.wg.Done()
	for e := range l.queue {
		// Writes use a fresh context: the request that produced the entry
		// may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.store.InsertAuditEntry(ctx, e); err != nil {
			l.log.Printf("audit: write failed action=%s entity=%s/%s: %v", e.Action, e.EntityType, e.EntityID, err)
		}
		cancel()
	}
}

// Record enqueues one entry, filling in id and timestamp. It never blocks:
// when the queue is full the entry is logged locally and dropped.
func (l *Logger) Record(e domain.AuditLogEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = l.Now().UTC().Format(time.RFC3339)
	}
	if e.ActionCategory == "" {
		e.ActionCategory = CategoryIntegration
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.log.Printf("audit: logger closed, dropping entry action=%s entity=%s/%s", e.Action, e.EntityType, e.EntityID)
		return
	}
	select {
	case l.queue <- e:
	default:
		l.log.Printf("audit: queue full, dropping entry action=%s entity=%s/%s", e.Action, e.EntityType, e.EntityID)
	}
}

// Detail marshals a detail payload for AuditLogEntry.Details.
func Detail(payload map[string]any) string {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Close stops accepting entries and drains the queue.
func (l *Logger) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	l.wg.Wait()
}
