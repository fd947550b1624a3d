package scheduler

// slab owns the stable-indexed storage for event records, the
// per-slot generation table that validates handles (a generation is
// bumped whenever a slot leaves the live set), a private per-slot
// heap epoch used only to invalidate superseded priority-queue
// entries (see pqueue.go), and the free list of slots eligible for
// reuse.
type slab struct {
	records   []record
	gens      []uint32
	heapEpoch []uint32
	freeList  []uint32
}

// alloc returns a slot ready for installation, either reused from the
// free list or freshly appended. The slot's generation is whatever
// survived from its last tenancy (or zero for a brand new slot);
// generations only advance when a slot leaves the live set, never on
// allocation.
func (s *slab) alloc() (idx uint32, gen uint32) {
	if n := len(s.freeList); n > 0 {
		idx = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		return idx, s.gens[idx]
	}

	idx = uint32(len(s.records))
	s.records = append(s.records, record{})
	s.gens = append(s.gens, 0)
	s.heapEpoch = append(s.heapEpoch, 0)
	return idx, 0
}

// free returns idx to the free list and bumps its generation, making
// every handle that addressed it stale.
func (s *slab) free(idx uint32) {
	s.gens[idx]++
	s.records[idx].status = statusFree
	s.freeList = append(s.freeList, idx)
}

// valid reports whether h addresses a slot whose generation matches
// and whose record carries the given status.
func (s *slab) valid(h EventHandle, want status) bool {
	if int(h.Index) >= len(s.records) {
		return false
	}
	return h.Generation == s.gens[h.Index] && s.records[h.Index].status == want
}
