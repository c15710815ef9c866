package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kind names a daemon subsystem (or internal source) an event came
// from.
type Kind string

const (
	KindPlaylist Kind = "playlist"
	KindPlayer   Kind = "player"
	KindDatabase Kind = "database"
	KindUpdate   Kind = "update"
)

// Scheduler runs a function on the UI thread's task queue. Handlers
// are always invoked through it.
type Scheduler func(fn func())

// defaultCoalesceWindow collapses consecutive duplicate events arriving
// within it.
const defaultCoalesceWindow = 250 * time.Millisecond

// Dispatcher consumes events in FIFO order, coalesces consecutive
// duplicates, and schedules the registered handlers for each kind.
type Dispatcher struct {
	schedule Scheduler
	window   time.Duration
	queue    chan Kind
	logger   *zerolog.Logger

	mu       sync.Mutex
	handlers map[Kind][]func()
}

// NewDispatcher builds a dispatcher delivering through schedule. A
// non-positive window disables coalescing.
func NewDispatcher(schedule Scheduler, window time.Duration, logger *zerolog.Logger) *Dispatcher {
	if window < 0 {
		window = 0
	}
	return &Dispatcher{
		schedule: schedule,
		window:   window,
		queue:    make(chan Kind, 64),
		logger:   logger,
		handlers: make(map[Kind][]func()),
	}
}

// Subscribe registers a handler for an event kind.
func (d *Dispatcher) Subscribe(kind Kind, handler func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], handler)
}

// Emit enqueues an event. The queue is bounded; an overflowing event is
// dropped since a newer one of the same kind will follow.
func (d *Dispatcher) Emit(kind Kind) {
	select {
	case d.queue <- kind:
	default:
		if d.logger != nil {
			d.logger.Warn().Str("kind", string(kind)).Msg("event queue full, dropping")
		}
	}
}

// Run consumes the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var (
		lastKind Kind
		lastAt   time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-d.queue:
			now := time.Now()
			if kind == lastKind && d.window > 0 && now.Sub(lastAt) < d.window {
				lastAt = now
				continue
			}
			lastKind, lastAt = kind, now
			d.dispatch(kind)
		}
	}
}

func (d *Dispatcher) dispatch(kind Kind) {
	d.mu.Lock()
	handlers := make([]func(), len(d.handlers[kind]))
	copy(handlers, d.handlers[kind])
	d.mu.Unlock()

	for _, handler := range handlers {
		d.schedule(handler)
	}
}
