// Package channel wraps Go channels behind small generic interfaces so
// producers can choose between blocking and dropping sends.
package channel

// Receiver is the consuming side.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender is the producing side. TrySend never blocks and reports whether the
// value was accepted.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel is both sides plus Close.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
