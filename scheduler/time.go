// Package scheduler implements an in-process discrete-time event
// scheduler: a single-threaded engine that fires one-shot and periodic
// callbacks as a caller-driven virtual clock advances.
//
// The clock is never read from wall time. The host owns the clock and
// decides when time passes by calling Tick, TickUntil, or Run.
package scheduler

// TimeMs is the scheduler's unit of virtual time. The name is
// conventional; the semantics are unit-agnostic. It is a signed
// integral type so the scheduler never has to reason about floating
// point drift.
type TimeMs int64
