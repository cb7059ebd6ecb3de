package observability

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Trace is one handler invocation as seen by the observability sink.
type Trace struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	UserID    string    `json:"user_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Context   string    `json:"context"`
	Failed    bool      `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink consumes traces. Sinks run on the tracer goroutine, never on the request path.
type Sink interface {
	Write(Trace)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Trace)

func (f SinkFunc) Write(t Trace) { f(t) }

// ZapSink logs traces at debug level.
func ZapSink(logger *zap.Logger) Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return SinkFunc(func(t Trace) {
		logger.Debug("agent trace",
			zap.String("trace_id", t.ID),
			zap.String("agent", t.Agent),
			zap.String("user_id", t.UserID),
			zap.String("input", t.Input),
			zap.String("output", t.Output),
			zap.Int("context_bytes", len(t.Context)),
			zap.Bool("failed", t.Failed),
		)
	})
}

// Tracer delivers traces to a sink over a bounded queue. Emit never blocks:
// when the queue is full the trace is dropped and counted.
type Tracer struct {
	sink   Sink
	onDrop func()

	mu     sync.RWMutex
	closed bool
	queue  chan Trace
	done   chan struct{}

	emitted atomic.Int64
	dropped atomic.Int64
}

func NewTracer(capacity int, sink Sink, onDrop func()) *Tracer {
	if capacity <= 0 {
		capacity = 256
	}
	t := &Tracer{
		sink:   sink,
		onDrop: onDrop,
		queue:  make(chan Trace, capacity),
		done:   make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Tracer) loop() {
	defer close(t.done)
	for tr := range t.queue {
		if t.sink != nil {
			t.sink.Write(tr)
		}
	}
}

func (t *Tracer) Emit(tr Trace) {
	if t == nil {
		return
	}
	if tr.Timestamp.IsZero() {
		tr.Timestamp = time.Now().UTC()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.closed {
		select {
		case t.queue <- tr:
			t.emitted.Add(1)
			return
		default:
		}
	}
	t.dropped.Add(1)
	if t.onDrop != nil {
		t.onDrop()
	}
}

func (t *Tracer) Dropped() int64 {
	if t == nil {
		return 0
	}
	return t.dropped.Load()
}

func (t *Tracer) Emitted() int64 {
	if t == nil {
		return 0
	}
	return t.emitted.Load()
}

// Close delivers queued traces and stops the worker.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	<-t.done
}
