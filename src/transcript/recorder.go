package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/voxline-ai/voxline/src/logger"
	"github.com/voxline-ai/voxline/src/turn"
)

// Appender is the durable sink the recorder writes lines to. Implemented
// by the artifact stores (file- or Redis-backed).
type Appender interface {
	AppendTranscript(ctx context.Context, callID, line string) error
}

// Recorder is the append-only side-log of every finalized turn of one
// call. Writes are dispatched to a background worker so a slow append
// never blocks the frame path; delivery is at-least-once, deduplicated
// by (call, timestamp).
type Recorder struct {
	callID   string
	appender Appender
	log      *logger.Logger

	queue   chan turn.Turn
	done    chan struct{}
	pending sync.WaitGroup

	mu     sync.Mutex
	seen   map[int64]struct{}
	turns  []turn.Turn
	closed bool
}

// NewRecorder creates a recorder for one call and starts its writer
func NewRecorder(callID string, appender Appender) *Recorder {
	r := &Recorder{
		callID:   callID,
		appender: appender,
		log:      logger.WithPrefix("Recorder"),
		queue:    make(chan turn.Turn, 256),
		done:     make(chan struct{}),
		seen:     make(map[int64]struct{}),
	}
	go r.writeLoop()
	return r
}

// RecordTurn enqueues a finalized turn for durable append. Duplicate
// deliveries of the same (call, timestamp) are dropped. Implements
// turn.Sink.
func (r *Recorder) RecordTurn(t turn.Turn) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("turn dropped after close: %s", t.Speaker)
		return
	}
	key := t.Timestamp.UnixNano()
	if _, dup := r.seen[key]; dup {
		r.mu.Unlock()
		return
	}
	r.seen[key] = struct{}{}
	r.turns = append(r.turns, t)
	r.pending.Add(1)
	r.mu.Unlock()

	// Blocks when the queue is full; writing inline here would let a
	// later turn land in the log before earlier queued ones
	r.queue <- t
	r.pending.Done()
}

// Turns returns the turns recorded so far, in arrival order
func (r *Recorder) Turns() []turn.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]turn.Turn(nil), r.turns...)
}

// Close flushes all pending writes and stops the writer. Must be called
// before the call-worker exits so the last turns survive shutdown.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	// Let blocked senders land their turns before the queue closes
	r.pending.Wait()
	close(r.queue)
	<-r.done
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for t := range r.queue {
		r.append(t)
	}
}

func (r *Recorder) append(t turn.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	line := FormatLine(t)
	if err := r.appender.AppendTranscript(ctx, r.callID, line); err != nil {
		r.log.Error("append failed for call %s: %v", r.callID, err)
	}
}
