// Package tracing is an optional, external collaborator of a
// scheduler.Scheduler: it hooks the scheduler's before/after-fire
// positions to record every firing, without reaching into the
// scheduler's invariants.
package tracing

import (
	"sync"

	"github.com/BakaMMGameMaker/event-scheduler/scheduler"
)

// FireRecord describes one completed callback dispatch.
type FireRecord struct {
	TraceID  string
	Handle   scheduler.EventHandle
	FireTime scheduler.TimeMs
	Err      string
}

// Hook is a scheduler.Hook that buffers a FireRecord per completed
// dispatch in memory, tagging each with a correlation ID from an
// IDGenerator since a recycled EventHandle is not itself a stable
// external identifier across a slot's lifetime.
type Hook struct {
	ids IDGenerator

	mu      sync.Mutex
	pending map[scheduler.EventHandle]pendingFire
	records []FireRecord
}

type pendingFire struct {
	traceID string
}

// NewHook creates a Hook that tags records with non-deterministic,
// xid-based correlation IDs.
func NewHook() *Hook {
	return &Hook{
		ids:     ParallelIDGenerator{},
		pending: make(map[scheduler.EventHandle]pendingFire),
	}
}

// Func implements scheduler.Hook.
func (h *Hook) Func(ctx scheduler.HookCtx) {
	switch ctx.Pos {
	case scheduler.HookPosBeforeFire:
		h.mu.Lock()
		h.pending[ctx.Handle] = pendingFire{traceID: h.ids.Generate()}
		h.mu.Unlock()
	case scheduler.HookPosAfterFire:
		h.mu.Lock()
		p := h.pending[ctx.Handle]
		delete(h.pending, ctx.Handle)

		rec := FireRecord{
			TraceID: p.traceID,
			Handle:  ctx.Handle,
		}
		if sched, ok := ctx.Domain.(*scheduler.Scheduler); ok {
			rec.FireTime = sched.Now()
		}
		if err, ok := ctx.Detail.(error); ok && err != nil {
			rec.Err = err.Error()
		}
		h.records = append(h.records, rec)
		h.mu.Unlock()
	}
}

// Records returns a snapshot of every FireRecord collected so far.
func (h *Hook) Records() []FireRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]FireRecord, len(h.records))
	copy(out, h.records)
	return out
}
