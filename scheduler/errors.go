package scheduler

import (
	"errors"
	"log"
)

// ErrInvalidHandle is the sentinel whose message prefixes the panic
// raised when a mutator other than Cancel/IsAlive is given a handle that is
// out-of-range, stale, or does not address an Alive slot. This is a
// programmer error, not a recoverable condition.
var ErrInvalidHandle = errors.New("scheduler: invalid event handle")

// ErrInvalidDescriptor is the sentinel whose message prefixes the
// panic raised when an EventDescriptor violates its own preconditions, e.g. a
// Repeat event with a non-positive Interval.
var ErrInvalidDescriptor = errors.New("scheduler: invalid event descriptor")

// ErrPaused is the sentinel whose message is the panic raised when Run
// is called while the scheduler is paused. The panics carry formatted
// strings (log.Panic/log.Panicf), not the error values themselves.
var ErrPaused = errors.New("scheduler: run called while paused")

func panicInvalidHandle(h EventHandle) {
	log.Panicf("%v: %+v", ErrInvalidHandle, h)
}

func panicInvalidDescriptor(reason string) {
	log.Panicf("%v: %s", ErrInvalidDescriptor, reason)
}
