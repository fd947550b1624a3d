package scheduler

import "math"

// EventHandle addresses a slot in the scheduler's event slab. It is
// valid only while Generation matches the slab's current generation
// counter for Index; once that slot is recycled, the handle is stale
// forever, never silently re-addressing a different event.
type EventHandle struct {
	Index      uint32
	Generation uint32
}

// InvalidHandle is the sentinel returned where no handle applies.
var InvalidHandle = EventHandle{Index: math.MaxUint32, Generation: math.MaxUint32}

// IsValid reports whether h is not the sentinel InvalidHandle. It does
// not check liveness against any scheduler; use Scheduler.IsAlive for
// that.
func (h EventHandle) IsValid() bool {
	return h != InvalidHandle
}
