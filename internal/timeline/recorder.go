package timeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ayush/favorites-app/internal/models"
)

// Inserter persists a single timeline entry.
type Inserter interface {
	InsertTimeline(ctx context.Context, entry *models.TimelineEntry) error
}

type job struct {
	entry   *models.TimelineEntry
	flushed chan struct{}
}

// Recorder writes timeline entries from a bounded queue on a single worker
// goroutine, so entries of one process are stored in the order they were
// recorded. Record never blocks: when the queue is full the entry is dropped.
type Recorder struct {
	store   Inserter
	timeout time.Duration
	queue   chan job
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(store Inserter, size int, timeout time.Duration) *Recorder {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := &Recorder{
		store:   store,
		timeout: timeout,
		queue:   make(chan job, size),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues an entry stamped with the current time.
func (r *Recorder) Record(owner, title, description string) {
	entry := &models.TimelineEntry{
		Title:       title,
		Description: description,
		Timestamp:   time.Now().UTC(),
		Owner:       owner,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		log.Printf("timeline: recorder closed, dropping %q for %q", title, owner)
		return
	}
	select {
	case r.queue <- job{entry: entry}:
	default:
		log.Printf("timeline: queue full, dropping %q for %q", title, owner)
	}
}

// Flush waits until every entry queued before the call has been handled.
func (r *Recorder) Flush(ctx context.Context) error {
	flushed := make(chan struct{})

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil
	}
	select {
	case r.queue <- job{flushed: flushed}:
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}
	r.mu.RUnlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for j := range r.queue {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.InsertTimeline(ctx, j.entry); err != nil {
			log.Printf("timeline: record %q for %q: %v", j.entry.Title, j.entry.Owner, err)
		}
		cancel()
	}
}
