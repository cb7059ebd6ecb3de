package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const indexWriteTimeout = 10 * time.Second

var errIndexQueueFull = errors.New("index write queue full")

type indexJob struct {
	rec  Record
	done chan struct{}
}

// indexWriter applies similarity-index writes off the request path. Writes are
// best-effort: a full queue drops the record and reports it through onFailure.
type indexWriter struct {
	index     SimilarityIndex
	onFailure func(Record, error)

	mu     sync.RWMutex
	closed bool
	queue  chan indexJob
	doneCh chan struct{}

	dropped atomic.Int64
}

func newIndexWriter(index SimilarityIndex, capacity int, onFailure func(Record, error)) *indexWriter {
	w := &indexWriter{
		index:     index,
		onFailure: onFailure,
		queue:     make(chan indexJob, capacity),
		doneCh:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *indexWriter) loop() {
	defer close(w.doneCh)
	for job := range w.queue {
		if job.done != nil {
			close(job.done)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), indexWriteTimeout)
		err := w.index.Add(ctx, job.rec)
		cancel()
		if err != nil {
			w.onFailure(job.rec, err)
		}
	}
}

func (w *indexWriter) enqueue(rec Record) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		w.onFailure(rec, errIndexQueueFull)
		return
	}
	select {
	case w.queue <- indexJob{rec: rec}:
	default:
		w.dropped.Add(1)
		w.onFailure(rec, errIndexQueueFull)
	}
}

// flush blocks until every write queued before the call has been applied.
func (w *indexWriter) flush(ctx context.Context) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	barrier := indexJob{done: make(chan struct{})}
	select {
	case w.queue <- barrier:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case <-barrier.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *indexWriter) pending() int { return len(w.queue) }

// close drains queued writes and stops the worker.
func (w *indexWriter) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.doneCh
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.doneCh
}
