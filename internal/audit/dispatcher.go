package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultBufferSize is how many events may wait for delivery before new
	// ones are dropped.
	DefaultBufferSize = 256
	maxAttempts       = 3
)

// Dispatcher fans events out to sinks on a background worker.
// Record never blocks: when the buffer is full the event is dropped and logged.
type Dispatcher struct {
	events    chan Event
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	started   bool

	sinks   []Sink
	log     zerolog.Logger
	backoff time.Duration
}

// NewDispatcher creates a dispatcher delivering to sinks.
func NewDispatcher(bufferSize int, log zerolog.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		events:    make(chan Event, bufferSize),
		closeChan: make(chan struct{}),
		sinks:     sinks,
		log:       log,
		backoff:   200 * time.Millisecond,
	}
}

// Record implements Logger.
func (d *Dispatcher) Record(ctx context.Context, e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	if d.closed {
		d.log.Warn().Str("event_id", e.ID).Str("type", string(e.Type)).Msg("Audit dispatcher closed, dropping event")
		return
	}

	select {
	case d.events <- e:
	default:
		d.log.Warn().
			Str("event_id", e.ID).
			Str("type", string(e.Type)).
			Str("reconciliation_id", e.ReconciliationID).
			Msg("Audit buffer full, dropping event")
	}
}

// Start launches the delivery worker. It returns an error if the dispatcher
// is closed or already running.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("audit dispatcher is closed")
	}
	if d.started {
		return fmt.Errorf("audit dispatcher already started")
	}
	d.started = true

	d.wg.Add(1)
	go d.worker(ctx)
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.closeChan:
			d.drain(ctx)
			return
		case e := <-d.events:
			d.deliver(ctx, e)
		}
	}
}

// drain delivers whatever is still buffered at shutdown.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.events:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, sink := range d.sinks {
		var err error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err = sink.Write(ctx, e); err == nil {
				break
			}
			if attempt < maxAttempts {
				select {
				case <-time.After(time.Duration(attempt) * d.backoff):
				case <-ctx.Done():
					attempt = maxAttempts
				}
			}
		}
		if err != nil {
			d.log.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("event_id", e.ID).
				Str("reconciliation_id", e.ReconciliationID).
				Msg("Failed to write audit event")
		}
	}
}

// Stop closes the dispatcher, flushes buffered events and waits for the
// worker to finish or ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.closeChan)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Logger = (*Dispatcher)(nil)
