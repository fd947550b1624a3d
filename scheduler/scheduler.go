package scheduler

import "log"

// Scheduler is a single-threaded, caller-clocked event dispatcher. It
// is not safe for concurrent use from multiple goroutines; the host
// serializes every call.
type Scheduler struct {
	HookableBase

	slab slab
	pq   pqHeap

	aliveCount     int
	cancelledCount int
	staleCount     int

	currentTime TimeMs
	fireCount   uint64

	ticking      bool
	firingHandle EventHandle

	paused      bool
	pausedAccum TimeMs

	mutationQueue []mutation
	pendingClear  int
}

// New creates an empty Scheduler at virtual time zero.
func New() *Scheduler {
	return &Scheduler{firingHandle: InvalidHandle}
}

// Now returns the scheduler's current virtual time.
func (s *Scheduler) Now() TimeMs { return s.currentTime }

// Size returns the number of Alive events.
func (s *Scheduler) Size() int { return s.aliveCount }

// FireCount returns the number of callbacks dispatched so far.
func (s *Scheduler) FireCount() uint64 { return s.fireCount }

// ScheduleAfter schedules desc to first fire at Now()+delta. delta
// must be non-negative; if desc.Kind is Repeat, desc.Interval must be
// strictly positive. Violating either precondition is a programmer
// error and panics.
func (s *Scheduler) ScheduleAfter(delta TimeMs, desc EventDescriptor) EventHandle {
	if delta < 0 {
		log.Panicf("scheduler: ScheduleAfter delta must be >= 0, got %d", delta)
	}
	return s.scheduleAt(s.currentTime+delta, desc)
}

// ScheduleAt schedules desc to first fire at the absolute virtual
// time t, equivalent to ScheduleAfter(t-Now(), desc).
func (s *Scheduler) ScheduleAt(t TimeMs, desc EventDescriptor) EventHandle {
	if t < s.currentTime {
		log.Panicf("scheduler: ScheduleAt time %d is before now %d", t, s.currentTime)
	}
	return s.scheduleAt(t, desc)
}

func validateDescriptor(desc EventDescriptor) {
	if desc.Callback == nil {
		panicInvalidDescriptor("callback must not be nil")
	}
	if desc.Kind == Repeat && desc.Interval <= 0 {
		panicInvalidDescriptor("repeat interval must be strictly positive")
	}
}

func (s *Scheduler) scheduleAt(at TimeMs, desc EventDescriptor) EventHandle {
	validateDescriptor(desc)

	if s.ticking {
		idx, gen := s.slab.alloc()
		s.slab.records[idx].status = statusReserved
		handle := EventHandle{Index: idx, Generation: gen + uint32(s.pendingClear)}
		s.mutationQueue = append(s.mutationQueue, mutation{
			kind:       mutSchedule,
			handle:     handle,
			descriptor: desc,
			nextFire:   at,
		})
		return handle
	}

	idx, gen := s.slab.alloc()
	handle := EventHandle{Index: idx, Generation: gen}
	s.installAlive(idx, desc, at)
	s.pq.push(pqEntry{handle: handle, epoch: s.slab.heapEpoch[idx], nextFire: at, priority: desc.Priority})
	return handle
}

func (s *Scheduler) installAlive(idx uint32, desc EventDescriptor, at TimeMs) {
	s.slab.records[idx] = record{descriptor: desc, status: statusAlive, nextFire: at}
	s.aliveCount++
}

// Cancel retires h if it currently addresses an Alive event. It is
// idempotent and never panics: a stale, invalid, or already-cancelled
// handle is simply a no-op that returns false.
func (s *Scheduler) Cancel(h EventHandle) bool {
	if int(h.Index) >= len(s.slab.records) {
		return false
	}
	if h.Generation != s.slab.gens[h.Index] {
		return false
	}
	if s.slab.records[h.Index].status != statusAlive {
		return false
	}

	s.slab.records[h.Index].status = statusCancelled
	s.aliveCount--

	if s.ticking && h == s.firingHandle {
		// The event being cancelled is the one currently under
		// dispatch: its heap entry was already popped to fire it, so
		// there is no heap garbage to track.
		return true
	}

	s.cancelledCount++
	s.maybeRebuild()
	return true
}

// maybeRebuild triggers a bulk rebuild once the heap garbage left by
// cancellations and reorders together would let the heap outgrow
// 2*aliveCount+1.
func (s *Scheduler) maybeRebuild() {
	if s.cancelledCount+s.staleCount > s.aliveCount {
		s.rebuild()
	}
}

// IsAlive reports whether h currently addresses an Alive event.
func (s *Scheduler) IsAlive(h EventHandle) bool {
	return s.slab.valid(h, statusAlive)
}

// Peek returns the handle and NextFire of the event that would fire
// next, after running the same lazy garbage filters Tick uses. ok is
// false if the scheduler holds no live events.
func (s *Scheduler) Peek() (h EventHandle, nextFire TimeMs, ok bool) {
	e, found := s.normalizeTop()
	if !found {
		return InvalidHandle, 0, false
	}
	return e.handle, e.nextFire, true
}

// normalizeTop repeatedly discards stale and cancelled entries, and
// collapses Latest-catchup backlog, until the heap top is a genuine
// due-or-pending entry, or the heap is empty.
func (s *Scheduler) normalizeTop() (pqEntry, bool) {
	for len(s.pq) > 0 {
		top := s.pq.top()
		idx := top.handle.Index

		if top.handle.Generation != s.slab.gens[idx] || top.epoch != s.slab.heapEpoch[idx] {
			if top.handle.Generation == s.slab.gens[idx] {
				s.staleCount--
			}
			s.pq.pop()
			continue
		}

		rec := &s.slab.records[idx]
		if rec.status == statusCancelled {
			s.pq.pop()
			s.slab.free(idx)
			s.cancelledCount--
			continue
		}

		if rec.descriptor.Kind == Repeat && rec.descriptor.Catchup == Latest && s.currentTime > rec.nextFire {
			interval := rec.descriptor.Interval
			skipped := int64(s.currentTime-rec.nextFire) / int64(interval)
			if skipped >= 1 {
				s.pq.pop()
				rec.nextFire += TimeMs(skipped) * interval
				s.pq.push(pqEntry{handle: top.handle, epoch: top.epoch, nextFire: rec.nextFire, priority: rec.descriptor.Priority})
				continue
			}
		}

		return top, true
	}
	return pqEntry{}, false
}

// Tick advances the virtual clock by delta (which must be
// non-negative) and fires every event newly due as a result,
// including events whose NextFire is already <= Now() before the
// advance. Events scheduled by a callback during this Tick are
// journaled and never fire within the same call.
//
// If an event's callback returns an error and its ExceptionPolicy is
// Rethrow, the error is returned after the scheduler's bookkeeping
// for that event is complete and the mutation queue has been
// flushed; the scheduler remains fully consistent for further calls.
func (s *Scheduler) Tick(delta TimeMs) error {
	if delta < 0 {
		log.Panicf("scheduler: Tick delta must be >= 0, got %d", delta)
	}

	if s.paused {
		s.pausedAccum += delta
		return nil
	}

	s.ticking = true
	defer func() {
		s.ticking = false
		s.flush()
	}()

	s.currentTime += delta

	for {
		top, ok := s.normalizeTop()
		if !ok {
			return nil
		}
		if s.currentTime < top.nextFire {
			return nil
		}

		handle := top.handle
		s.pq.pop()
		s.fireCount++

		rec := &s.slab.records[handle.Index]
		s.invokeHook(HookCtx{Domain: s, Pos: HookPosBeforeFire, Handle: handle})

		s.firingHandle = handle
		err := rec.descriptor.Callback(handle)
		s.firingHandle = InvalidHandle

		switch {
		case err == nil:
			s.finishFire(handle, rec)
		case rec.descriptor.ExceptionPolicy == Cancel:
			if rec.status != statusCancelled {
				rec.status = statusCancelled
				s.aliveCount--
			}
			s.finishFire(handle, rec)
		case rec.descriptor.ExceptionPolicy == Swallow:
			s.finishFire(handle, rec)
		default: // Rethrow
			s.finishFire(handle, rec)
			s.invokeHook(HookCtx{Domain: s, Pos: HookPosAfterFire, Handle: handle, Detail: err})
			return err
		}

		s.invokeHook(HookCtx{Domain: s, Pos: HookPosAfterFire, Handle: handle, Detail: err})
	}
}

// finishFire applies the post-callback bookkeeping: a cancelled
// record is harvested, a Repeat re-pushes at its next interval, and a
// Once retires.
func (s *Scheduler) finishFire(handle EventHandle, rec *record) {
	idx := handle.Index
	switch {
	case rec.status == statusCancelled:
		s.slab.free(idx)
	case rec.descriptor.Kind == Repeat:
		rec.nextFire += rec.descriptor.Interval
		s.pq.push(pqEntry{handle: handle, epoch: s.slab.heapEpoch[idx], nextFire: rec.nextFire, priority: rec.descriptor.Priority})
	default: // Once
		rec.status = statusCancelled
		s.aliveCount--
		s.slab.free(idx)
	}
}

// TickUntil advances the clock to exactly t, firing every event due
// at or before t. It is equivalent to Tick(max(0, t-Now())).
func (s *Scheduler) TickUntil(t TimeMs) error {
	delta := t - s.currentTime
	if delta < 0 {
		delta = 0
	}
	return s.Tick(delta)
}

// Run fires every event until the scheduler holds none, advancing the
// clock to each fired event's own time as it goes. Run panics if the
// scheduler is currently paused.
func (s *Scheduler) Run() error {
	if s.paused {
		log.Panic(ErrPaused)
	}

	for {
		e, ok := s.normalizeTop()
		if !ok {
			return nil
		}
		delta := e.nextFire - s.currentTime
		if delta < 0 {
			delta = 0
		}
		if err := s.Tick(delta); err != nil {
			return err
		}
	}
}

// Pause prevents Tick from advancing the clock or firing events; the
// requested deltas accumulate instead. Pause is idempotent.
func (s *Scheduler) Pause() {
	s.paused = true
}

// Resume clears the paused flag and immediately replays the
// accumulated time as a single synthetic Tick, exactly as if the
// pause had never happened (modulo each Repeat event's own Catchup
// policy).
func (s *Scheduler) Resume() error {
	if !s.paused {
		return nil
	}
	s.paused = false
	accum := s.pausedAccum
	s.pausedAccum = 0
	return s.Tick(accum)
}

// Clear empties the scheduler: every event is cancelled, and the
// clock, pause accumulator, and fire count reset to zero. Called from
// inside a dispatch window, only the removal of events is applied, and
// it is deferred to the end of the current Tick/Run call so the live
// iteration is never corrupted; the clock, fire count, and pause state
// are left unchanged in that case.
func (s *Scheduler) Clear() {
	if s.ticking {
		s.clearDuringTick()
		return
	}

	s.slab = slab{}
	s.pq = nil
	s.aliveCount = 0
	s.cancelledCount = 0
	s.staleCount = 0
	s.currentTime = 0
	s.fireCount = 0
	s.paused = false
	s.pausedAccum = 0
	s.mutationQueue = nil
	s.pendingClear = 0
}

func (s *Scheduler) clearDuringTick() {
	// Discard every entry journaled so far this pass, freeing any
	// slot a discarded Schedule had reserved.
	for _, m := range s.mutationQueue {
		if m.kind == mutSchedule {
			s.slab.free(m.handle.Index)
		}
	}
	s.mutationQueue = s.mutationQueue[:0]
	s.pendingClear++
	s.mutationQueue = append(s.mutationQueue, mutation{kind: mutClear})
}

// Delay shifts h's next firing by delta (which may be negative). If
// the resulting time is still in the future, the move applies
// immediately; if it would be at or before Now() during an active
// dispatch, it is deferred so the event cannot fire within the
// current pass.
func (s *Scheduler) Delay(h EventHandle, delta TimeMs) {
	rec := s.mustAlive(h)
	s.setNextFire(h, rec, rec.nextFire+delta)
}

// SetNextFire retargets h's next firing to the absolute time t. See
// Delay for the immediate-vs-deferred rule.
func (s *Scheduler) SetNextFire(h EventHandle, t TimeMs) {
	rec := s.mustAlive(h)
	s.setNextFire(h, rec, t)
}

func (s *Scheduler) setNextFire(h EventHandle, rec *record, t TimeMs) {
	if s.ticking && t <= s.currentTime {
		s.mutationQueue = append(s.mutationQueue, mutation{kind: mutDelay, handle: h, nextFire: t})
		return
	}

	rec.nextFire = t
	s.slab.heapEpoch[h.Index]++
	s.pq.push(pqEntry{handle: h, epoch: s.slab.heapEpoch[h.Index], nextFire: t, priority: rec.descriptor.Priority})
	s.staleCount++
	s.maybeRebuild()
}

// SetPriority changes h's priority, re-seating its priority-queue
// entry so the new ordering takes effect immediately.
func (s *Scheduler) SetPriority(h EventHandle, p Priority) {
	rec := s.mustAlive(h)
	rec.descriptor.Priority = p
	s.slab.heapEpoch[h.Index]++
	s.pq.push(pqEntry{handle: h, epoch: s.slab.heapEpoch[h.Index], nextFire: rec.nextFire, priority: p})
	s.staleCount++
	s.maybeRebuild()
}

// SetInterval changes h's repeat interval. It does not affect the
// event's pending NextFire.
func (s *Scheduler) SetInterval(h EventHandle, interval TimeMs) {
	rec := s.mustAlive(h)
	if rec.descriptor.Kind == Repeat && interval <= 0 {
		panicInvalidDescriptor("repeat interval must be strictly positive")
	}
	rec.descriptor.Interval = interval
}

// SetKind changes h between Once and Repeat.
func (s *Scheduler) SetKind(h EventHandle, kind EventKind) {
	rec := s.mustAlive(h)
	if kind == Repeat && rec.descriptor.Interval <= 0 {
		panicInvalidDescriptor("repeat interval must be strictly positive")
	}
	rec.descriptor.Kind = kind
}

// SetExceptionPolicy changes how h's callback errors are handled.
func (s *Scheduler) SetExceptionPolicy(h EventHandle, ep ExceptionPolicy) {
	s.mustAlive(h).descriptor.ExceptionPolicy = ep
}

// SetCatchup changes h's backlog-recovery policy.
func (s *Scheduler) SetCatchup(h EventHandle, cu CatchupPolicy) {
	s.mustAlive(h).descriptor.Catchup = cu
}

// mustAlive returns the record h addresses, panicking if h is
// out-of-range, stale, or not Alive. Every mutator but Cancel and
// IsAlive treats an invalid handle as a programmer error.
func (s *Scheduler) mustAlive(h EventHandle) *record {
	if !s.slab.valid(h, statusAlive) {
		panicInvalidHandle(h)
	}
	return &s.slab.records[h.Index]
}

// rebuild performs the bulk O(n log n) garbage collection, triggered
// by maybeRebuild once cancelled-event and stale-reorder garbage
// together exceed aliveCount.
func (s *Scheduler) rebuild() {
	old := s.pq
	s.pq = make(pqHeap, 0, len(old))

	for len(old) > 0 {
		e := old.pop()
		idx := e.handle.Index

		if e.handle.Generation != s.slab.gens[idx] || e.epoch != s.slab.heapEpoch[idx] {
			continue
		}
		if s.slab.records[idx].status == statusCancelled {
			s.slab.free(idx)
			continue
		}
		s.pq.push(e)
	}

	s.cancelledCount = 0
	s.staleCount = 0
}

// flush drains the mutation queue accumulated during one dispatch
// window, applying Schedule, Clear, and deferred Delay operations in
// the order they were journaled. This runs even when unwinding from a
// Rethrown callback error.
func (s *Scheduler) flush() {
	queue := s.mutationQueue
	s.mutationQueue = nil
	pendingClear := s.pendingClear
	s.pendingClear = 0

	for _, m := range queue {
		switch m.kind {
		case mutClear:
			s.applyDeferredClear(pendingClear)
		case mutSchedule:
			s.applyDeferredSchedule(m)
		case mutDelay:
			s.applyDeferredDelay(m)
		}
	}
}

func (s *Scheduler) applyDeferredClear(pendingClear int) {
	for i := range s.slab.gens {
		s.slab.gens[i] += uint32(pendingClear)
	}

	for idx := range s.slab.records {
		switch s.slab.records[idx].status {
		case statusAlive, statusCancelled:
			s.slab.records[idx].status = statusFree
			s.slab.freeList = append(s.slab.freeList, uint32(idx))
		}
	}

	s.pq = s.pq[:0]
	s.aliveCount = 0
	s.cancelledCount = 0
	s.staleCount = 0
}

func (s *Scheduler) applyDeferredSchedule(m mutation) {
	idx := m.handle.Index
	if s.slab.gens[idx] != m.handle.Generation {
		// Superseded by an intervening Clear that this Schedule did
		// not survive (should not happen: Clear frees only entries
		// queued before it, and offsets later generations to match).
		return
	}

	s.installAlive(idx, m.descriptor, m.nextFire)
	s.pq.push(pqEntry{handle: m.handle, epoch: s.slab.heapEpoch[idx], nextFire: m.nextFire, priority: m.descriptor.Priority})
}

func (s *Scheduler) applyDeferredDelay(m mutation) {
	idx := m.handle.Index
	if !s.slab.valid(m.handle, statusAlive) {
		return
	}

	rec := &s.slab.records[idx]
	rec.nextFire = m.nextFire
	s.slab.heapEpoch[idx]++
	s.pq.push(pqEntry{handle: m.handle, epoch: s.slab.heapEpoch[idx], nextFire: m.nextFire, priority: rec.descriptor.Priority})
	s.staleCount++
	s.maybeRebuild()
}
