package position

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
)

const queueDepth = 16

// Op is a unit of work against one position. It must check ctx before doing
// anything that mutates shared state; a cancelled ctx means the position
// was deleted while this op was queued.
type Op func(ctx context.Context)

type positionQueue struct {
	ch     chan Op
	cancel context.CancelFunc
	done   chan struct{}
}

// Serializer guarantees exactly one operation runs at a time per position,
// in FIFO order, across however many goroutines submit work for that
// position (market data events, fills, operator edits, operator closes).
// It lazily starts one worker goroutine per position on first use and tears
// it down on Close.
type Serializer struct {
	mu      sync.Mutex
	queues  map[uuid.UUID]*positionQueue
	closed  map[uuid.UUID]struct{}
	logger  *slog.Logger
}

func NewSerializer(logger *slog.Logger) *Serializer {
	return &Serializer{
		queues: make(map[uuid.UUID]*positionQueue),
		closed: make(map[uuid.UUID]struct{}),
		logger: logger.With("component", "position.serializer"),
	}
}

// queueFor returns the position's worker queue, creating it on first use.
// Returns nil for an id that was already Close'd: a late event (e.g. a fill
// delta still inside the recently-cancelled TTL window) must not resurrect a
// queue and goroutine for a position that is gone for good.
func (s *Serializer) queueFor(id uuid.UUID) *positionQueue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.closed[id]; done {
		return nil
	}

	q, ok := s.queues[id]
	if ok {
		return q
	}

	ctx, cancel := context.WithCancel(context.Background())
	q = &positionQueue{
		ch:     make(chan Op, queueDepth),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.queues[id] = q
	go s.run(id, ctx, q)
	return q
}

func (s *Serializer) run(id uuid.UUID, ctx context.Context, q *positionQueue) {
	defer close(q.done)
	for {
		select {
		case op, ok := <-q.ch:
			if !ok {
				return
			}
			s.runOne(id, ctx, op)
		case <-ctx.Done():
			// Run whatever is still queued, each op with the
			// already-cancelled context, then exit.
			for {
				select {
				case op, ok := <-q.ch:
					if !ok {
						return
					}
					s.runOne(id, ctx, op)
				default:
					return
				}
			}
		}
	}
}

func (s *Serializer) runOne(id uuid.UUID, ctx context.Context, op Op) {
	var c panics.Catcher
	c.Try(func() { op(ctx) })
	if recovered := c.Recovered(); recovered != nil {
		s.logger.Error("position operation panicked", "position_id", id, "panic", recovered.AsError())
	}
}

// Enqueue submits fn to run exclusively against the given position. Returns
// immediately; fn runs asynchronously once prior queued ops for the same
// position have completed. Submission after Close is a no-op: the op is
// simply dropped, since the position no longer exists and queueFor refuses
// to recreate its queue.
func (s *Serializer) Enqueue(id uuid.UUID, fn Op) {
	q := s.queueFor(id)
	if q == nil {
		return
	}
	select {
	case q.ch <- fn:
	default:
		// Queue full: hand the op to a goroutine that blocks until the
		// queue has room rather than drop it; such an op can run after
		// ops enqueued later.
		go func() { q.ch <- fn }()
	}
}

// Close tears down a position's worker goroutine, cancelling its context so
// any operations still queued run with a cancelled context, and
// tombstones id so a later Enqueue (e.g. a late fill delivered after the
// position closed) can never spin up a new queue and goroutine for it.
// Safe to call more than once.
func (s *Serializer) Close(id uuid.UUID) {
	s.mu.Lock()
	q, ok := s.queues[id]
	if ok {
		delete(s.queues, id)
	}
	s.closed[id] = struct{}{}
	s.mu.Unlock()
	if !ok {
		return
	}
	q.cancel()
	close(q.ch)
	<-q.done
}
