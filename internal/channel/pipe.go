package channel

import "sync"

// Pipe is a Channel over a Go channel of fixed capacity. Capacity 0 makes
// every send a rendezvous.
type Pipe[T any] struct {
	ch   chan T
	once sync.Once
}

// New returns a pipe holding up to size values. Debug builds ignore size and
// return unbuffered pipes, which makes ordering bugs reproducible.
func New[T any](size int) Channel[T] {
	if unbufferedOnly {
		size = 0
	}
	return newPipe[T](size)
}

// NewBuffered returns a pipe with room for size values.
func NewBuffered[T any](size int) *Pipe[T] {
	return newPipe[T](size)
}

// NewUnbuffered returns a rendezvous pipe.
func NewUnbuffered[T any]() *Pipe[T] {
	return newPipe[T](0)
}

func newPipe[T any](size int) *Pipe[T] {
	if size < 0 {
		size = 0
	}
	return &Pipe[T]{ch: make(chan T, size)}
}

// Send blocks until the value is queued or received.
func (p *Pipe[T]) Send(v T) {
	p.ch <- v
}

// TrySend queues v if there is room or a receiver is waiting.
func (p *Pipe[T]) TrySend(v T) bool {
	select {
	case p.ch <- v:
		return true
	default:
		return false
	}
}

func (p *Pipe[T]) Receive() <-chan T {
	return p.ch
}

// Len is the number of queued values; always 0 for a rendezvous pipe.
func (p *Pipe[T]) Len() int {
	return len(p.ch)
}

// Cap is the pipe's capacity.
func (p *Pipe[T]) Cap() int {
	return cap(p.ch)
}

// Close ends Receive for ranging readers. Closing twice is a no-op; sending
// after Close panics like a closed Go channel.
func (p *Pipe[T]) Close() {
	p.once.Do(func() { close(p.ch) })
}
