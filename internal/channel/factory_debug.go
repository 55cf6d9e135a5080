//go:build debug

package channel

// Debug builds turn every pipe made by New into a rendezvous.
const unbufferedOnly = true
