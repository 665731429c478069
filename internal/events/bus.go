package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Bus decouples event producers from consumers. Delivery is
// at-most-once per handler with FIFO ordering per handler within an
// event type. Publish never blocks on consumer execution.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	Start(ctx context.Context)
	Stop()
}

type asyncBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler

	queue   chan Event
	logger  *zap.Logger
	startMu sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewBus creates an asynchronous bus with the given queue capacity.
func NewBus(logger *zap.Logger, queueSize int) Bus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &asyncBus{
		handlers: make(map[EventType][]EventHandler),
		queue:    make(chan Event, queueSize),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event type. Registration
// is expected during startup wiring; there is no unsubscribe.
func (b *asyncBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish enqueues the event and returns immediately. When the queue is
// saturated the event is dropped and logged; published events are
// notifications, not a durable log.
func (b *asyncBus) Publish(ctx context.Context, event Event) error {
	select {
	case b.queue <- event:
	default:
		b.logger.Warn("event queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID))
	}
	return nil
}

// Start launches the dispatch loop. Calling Start more than once is a
// no-op.
func (b *asyncBus) Start(ctx context.Context) {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return
	}
	b.started = true
	go b.dispatch(ctx)
}

// Stop halts dispatching promptly. Events still queued are not
// delivered; the handler currently executing runs to completion. The
// bus is one-shot: a stopped bus cannot be restarted.
func (b *asyncBus) Stop() {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if !b.started || b.stopped {
		return
	}
	b.stopped = true
	close(b.stop)
	<-b.done
}

func (b *asyncBus) dispatch(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		case event := <-b.queue:
			b.deliver(ctx, event)
		}
	}
}

// deliver invokes every handler for the event in subscription order. A
// failing handler must not block or lose delivery to its siblings.
func (b *asyncBus) deliver(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler{}, b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := b.safeInvoke(ctx, handler, event); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("issue_id", event.IssueID),
				zap.Error(err))
		}
	}
}

func (b *asyncBus) safeInvoke(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r))
		}
	}()
	return handler(ctx, event)
}
