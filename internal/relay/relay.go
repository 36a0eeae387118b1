package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by Close on an already closed relay.
var ErrClosed = errors.New("relay closed")

// DefaultBuffer is the event buffer size used when Options.Buffer is zero.
const DefaultBuffer = 256

// Options configures a Relay.
type Options struct {
	// Buffer is the number of events held while sinks catch up.
	Buffer int

	// Rate limits deliveries per second. Zero or less is unlimited.
	Rate float64

	// Burst is the limiter burst size. Zero means 1.
	Burst int

	Logger *slog.Logger
}

// Stats reports relay counters.
type Stats struct {
	Delivered int64
	Dropped   int64
	Failed    int64
}

// Relay fans events out to sinks from a single worker goroutine.
type Relay struct {
	sinks   []Sink
	events  chan Event
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New starts a relay delivering to sinks.
func New(opts Options, sinks ...Sink) *Relay {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}

	r := &Relay{
		sinks:   sinks,
		events:  make(chan Event, opts.Buffer),
		limiter: rate.NewLimiter(limit, opts.Burst),
		logger:  opts.Logger,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Offer queues ev without blocking. It reports false when the event was
// dropped because the buffer is full or the relay is closed.
func (r *Relay) Offer(ev Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.events <- ev:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Stats returns a snapshot of the counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
	}
}

func (r *Relay) run() {
	defer close(r.done)
	ctx := context.Background()

	for ev := range r.events {
		if err := r.limiter.Wait(ctx); err != nil {
			r.logger.Warn("relay rate limiter failed", "error", err)
		}
		for _, s := range r.sinks {
			if err := s.Publish(ctx, ev); err != nil {
				r.failed.Add(1)
				r.logger.Error("relay publish failed", "sink", s.Name(), "kind", ev.Kind, "rowid", ev.RowID, "error", err)
				continue
			}
			r.delivered.Add(1)
		}
	}
}

// Close stops accepting events, delivers what is buffered, then closes every
// sink.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done

	errs := new(multierror.Error)
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close sink %s: %w", s.Name(), err))
		}
	}
	stats := r.Stats()
	r.logger.Debug("relay closed", "delivered", stats.Delivered, "dropped", stats.Dropped, "failed", stats.Failed)
	return errs.ErrorOrNil()
}
