package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/estate360/positioner/internal/channel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

const (
	blockingRetry       = time.Millisecond
	instrumentationName = "github.com/estate360/positioner/internal/dispatcher"
)

// Event is a command with a typed payload.
type Event[T any] struct {
	Command   string
	Data      T
	Timestamp time.Time
}

// NewEvent stamps an event with the current time.
func NewEvent[T any](command string, data T) Event[T] {
	return Event[T]{Command: command, Data: data, Timestamp: time.Now()}
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc[T any] func(Event[T]) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher[T any] struct {
	name   string
	logger Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc[T]
	buffers  map[string]channel.Channel[Event[T]]

	// OTEL metrics
	queueSize    metric.Int64ObservableGauge
	processed    metric.Int64Counter
	dropped      metric.Int64Counter
	registration metric.Registration

	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

// New creates a new Dispatcher. name is attached to every metric so several
// dispatchers can share the global meter.
func New[T any](name string, logger Logger) (*Dispatcher[T], error) {
	d := &Dispatcher[T]{
		name:     name,
		logger:   logger,
		handlers: make(map[string]HandlerFunc[T]),
		buffers:  make(map[string]channel.Channel[Event[T]]),
		done:     make(chan struct{}),
	}

	if err := d.initMetrics(otel.Meter(instrumentationName)); err != nil {
		return nil, err
	}
	return d, nil
}

// initMetrics creates the queue gauge and event counters on m. The global
// meter is a no-op until a provider is installed.
func (d *Dispatcher[T]) initMetrics(m metric.Meter) error {
	var err error
	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Events waiting in a buffered handler's queue"),
	)
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}

	d.registration, err = m.RegisterCallback(d.observeQueues, d.queueSize)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Events handled, per dispatcher and command"),
	)
	if err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Events dropped by a full queue or a closed dispatcher"),
	)
	if err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	return nil
}

func (d *Dispatcher[T]) observeQueues(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, buf := range d.buffers {
		o.ObserveInt64(d.queueSize, int64(buf.Len()), metric.WithAttributes(d.attrs(cmd)...))
	}
	return nil
}

func (d *Dispatcher[T]) attrs(command string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("dispatcher", d.name),
		attribute.String("command", command),
	}
}

// Register adds a handler for the given command with optional configuration.
// Registering after Close is a no-op.
func (d *Dispatcher[T]) Register(command string, h HandlerFunc[T], opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if d.Closed() {
		return
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(command, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher[T]) Dispatch(e Event[T]) (any, error) {
	if d.Closed() {
		d.dropped.Add(context.Background(), 1, metric.WithAttributes(d.attrs(e.Command)...))
		return nil, fmt.Errorf("%w: %s", ErrClosed, e.Command)
	}
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher[T]) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Closed reports whether Close has been called.
func (d *Dispatcher[T]) Closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Close stops accepting events, lets buffered handlers drain what is already
// queued, and unregisters the queue gauge. It is safe to call more than once.
func (d *Dispatcher[T]) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		d.workers.Wait()
		if d.registration != nil {
			err = d.registration.Unregister()
		}
	})
	return err
}

func (d *Dispatcher[T]) withBuffer(command string, size int, blocking bool, h HandlerFunc[T]) HandlerFunc[T] {
	buffer := channel.New[Event[T]](size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttrs := metric.WithAttributes(d.attrs(command)...)
	handle := func(e Event[T]) {
		h(e)
		d.processed.Add(context.Background(), 1, cmdAttrs)
	}

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for {
			select {
			case e := <-buffer.Receive():
				handle(e)
			case <-d.done:
				for {
					select {
					case e := <-buffer.Receive():
						handle(e)
					default:
						return
					}
				}
			}
		}
	}()

	if blocking {
		return func(e Event[T]) (any, error) {
			for !buffer.TrySend(e) {
				select {
				case <-d.done:
					d.dropped.Add(context.Background(), 1, cmdAttrs)
					return nil, fmt.Errorf("%w: %s", ErrClosed, command)
				case <-time.After(blockingRetry):
				}
			}
			return "queued", nil
		}
	}

	return func(e Event[T]) (any, error) {
		if buffer.TrySend(e) {
			return "queued", nil
		}
		d.dropped.Add(context.Background(), 1, cmdAttrs)
		return nil, fmt.Errorf("queue full: %s", command)
	}
}

func (d *Dispatcher[T]) withLogging(command string, h HandlerFunc[T]) HandlerFunc[T] {
	return func(e Event[T]) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "dispatcher", d.name, "command", command)

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "dispatcher", d.name, "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "dispatcher", d.name, "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
