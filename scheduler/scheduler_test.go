package scheduler

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func noop(EventHandle) error { return nil }

var _ = Describe("Scheduler", func() {
	var s *Scheduler

	BeforeEach(func() {
		s = New()
	})

	Describe("ScheduleAfter and Cancel", func() {
		It("should reject a negative delta", func() {
			Expect(func() {
				s.ScheduleAfter(-1, EventDescriptor{Callback: noop})
			}).To(Panic())
		})

		It("should reject a Repeat descriptor with a non-positive interval", func() {
			Expect(func() {
				s.ScheduleAfter(0, EventDescriptor{Kind: Repeat, Interval: 0, Callback: noop})
			}).To(Panic())
		})

		It("should make a cancelled handle report not-alive", func() {
			h := s.ScheduleAfter(100, EventDescriptor{Callback: noop})
			Expect(s.IsAlive(h)).To(BeTrue())

			Expect(s.Cancel(h)).To(BeTrue())
			Expect(s.IsAlive(h)).To(BeFalse())

			Expect(s.Cancel(h)).To(BeFalse(), "cancelling twice is a no-op")
		})

		It("should never invoke the callback of a cancelled event", func() {
			fired := false
			h := s.ScheduleAfter(100, EventDescriptor{Callback: func(EventHandle) error {
				fired = true
				return nil
			}})
			s.Cancel(h)
			Expect(s.Tick(200)).To(Succeed())
			Expect(fired).To(BeFalse())
		})
	})

	Describe("handle safety", func() {
		It("should keep reporting false for is_alive once reported false", func() {
			h := s.ScheduleAfter(10, EventDescriptor{Callback: noop})
			s.Cancel(h)
			Expect(s.IsAlive(h)).To(BeFalse())
			Expect(s.Tick(100)).To(Succeed())
			Expect(s.IsAlive(h)).To(BeFalse())
		})

		It("should never let a stale handle address a recycled slot", func() {
			h1 := s.ScheduleAfter(10, EventDescriptor{Callback: noop})
			Expect(s.Tick(10)).To(Succeed()) // h1 fires and retires (Once)

			var h2 EventHandle
			for i := 0; i < 8; i++ {
				h2 = s.ScheduleAfter(TimeMs(i), EventDescriptor{Callback: noop})
			}
			Expect(s.IsAlive(h1)).To(BeFalse())
			_ = h2
		})
	})

	Describe("priority ordering", func() {
		It("should fire System before User before Debug at the same time", func() {
			var order []string
			record := func(name string) Callback {
				return func(EventHandle) error {
					order = append(order, name)
					return nil
				}
			}

			s.ScheduleAfter(100, EventDescriptor{Callback: record("user"), Priority: PriorityUser})
			s.ScheduleAfter(100, EventDescriptor{Callback: record("system"), Priority: PrioritySystem})
			s.ScheduleAfter(100, EventDescriptor{Callback: record("debug"), Priority: PriorityDebug})

			Expect(s.Tick(100)).To(Succeed())
			Expect(order).To(Equal([]string{"system", "user", "debug"}))
		})
	})

	Describe("catch-up policies", func() {
		It("should fire once per skipped cycle under All", func() {
			count := 0
			s.ScheduleAfter(100, EventDescriptor{
				Kind: Repeat, Interval: 100, Catchup: All,
				Callback: func(EventHandle) error { count++; return nil },
			})

			Expect(s.Tick(1000)).To(Succeed())
			Expect(count).To(Equal(10))
		})

		It("should collapse any backlog into a single fire under Latest", func() {
			count := 0
			h := s.ScheduleAfter(100, EventDescriptor{
				Kind: Repeat, Interval: 100, Catchup: Latest,
				Callback: func(EventHandle) error { count++; return nil },
			})

			Expect(s.Tick(1000)).To(Succeed())
			Expect(count).To(Equal(1))

			_, nextFire, ok := s.Peek()
			Expect(ok).To(BeTrue())
			Expect(nextFire).To(Equal(TimeMs(1100)))
			_ = h
		})
	})

	Describe("exception policies", func() {
		It("Swallow keeps a Repeat alive and on schedule", func() {
			fires := 0
			s.ScheduleAfter(10, EventDescriptor{
				Kind: Repeat, Interval: 10, ExceptionPolicy: Swallow,
				Callback: func(EventHandle) error { fires++; return errBoom },
			})
			Expect(s.Tick(100)).To(Succeed())
			Expect(fires).To(Equal(10))
			Expect(s.Size()).To(Equal(1))
		})

		It("Cancel retires the event even if it is Repeat", func() {
			fires := 0
			s.ScheduleAfter(10, EventDescriptor{
				Kind: Repeat, Interval: 10, ExceptionPolicy: Cancel,
				Callback: func(EventHandle) error { fires++; return errBoom },
			})
			Expect(s.Tick(100)).To(Succeed())
			Expect(fires).To(Equal(1))
			Expect(s.Size()).To(Equal(0))
		})

		It("Rethrow propagates the error out of Tick after bookkeeping completes", func() {
			fires := 0
			h := s.ScheduleAfter(10, EventDescriptor{
				Kind: Repeat, Interval: 10, ExceptionPolicy: Rethrow,
				Callback: func(EventHandle) error { fires++; return errBoom },
			})

			err := s.Tick(10)
			Expect(err).To(MatchError(errBoom))
			Expect(fires).To(Equal(1))
			Expect(s.IsAlive(h)).To(BeTrue(), "a Repeat survives a rethrown error")

			_, _, ok := s.Peek()
			Expect(ok).To(BeTrue())
		})
	})

	Describe("re-entrant mutation", func() {
		It("never fires an event scheduled during the same tick", func() {
			var childFired bool
			var parentHandle EventHandle

			parentHandle = s.ScheduleAfter(100, EventDescriptor{Callback: func(EventHandle) error {
				s.ScheduleAfter(0, EventDescriptor{Callback: func(EventHandle) error {
					childFired = true
					return nil
				}})
				return nil
			}})

			Expect(s.Tick(100)).To(Succeed())
			Expect(childFired).To(BeFalse())

			Expect(s.Tick(0)).To(Succeed())
			Expect(childFired).To(BeTrue())
			_ = parentHandle
		})

		It("lets a clear issued mid-callback take effect after the dispatch window closes", func() {
			var survivorFired bool

			s.ScheduleAfter(100, EventDescriptor{Callback: func(EventHandle) error {
				s.Clear()
				s.ScheduleAfter(0, EventDescriptor{Callback: func(EventHandle) error {
					survivorFired = true
					return nil
				}})
				return nil
			}})
			s.ScheduleAfter(100, EventDescriptor{Callback: noop, Priority: PriorityDebug})

			Expect(s.Tick(100)).To(Succeed())
			Expect(s.Size()).To(Equal(1), "only the post-clear schedule should remain")

			Expect(s.Tick(0)).To(Succeed())
			Expect(survivorFired).To(BeTrue())
		})
	})

	Describe("garbage collection", func() {
		It("reuses the slots of cancelled events and keeps their old handles stale", func() {
			var handles []EventHandle
			for i := 0; i < 10; i++ {
				handles = append(handles, s.ScheduleAfter(TimeMs(10000+i), EventDescriptor{Callback: noop}))
			}

			var cancelledIdx []uint32
			for i := 0; i < 9; i++ {
				cancelledIdx = append(cancelledIdx, handles[i].Index)
				Expect(s.Cancel(handles[i])).To(BeTrue())
			}

			var reusedIdx []uint32
			for i := 0; i < 9; i++ {
				h := s.ScheduleAfter(TimeMs(20000+i), EventDescriptor{Callback: noop})
				reusedIdx = append(reusedIdx, h.Index)
			}

			Expect(reusedIdx).To(ConsistOf(cancelledIdx))
			for _, h := range handles[:9] {
				Expect(s.IsAlive(h)).To(BeFalse())
			}
		})
	})

	Describe("pause and resume", func() {
		It("accumulates ticks while paused and replays them on resume", func() {
			fires := 0
			s.ScheduleAfter(100, EventDescriptor{
				Kind: Repeat, Interval: 100,
				Callback: func(EventHandle) error { fires++; return nil },
			})

			Expect(s.Tick(250)).To(Succeed())
			Expect(fires).To(Equal(2))

			s.Pause()
			Expect(s.Tick(450)).To(Succeed())
			Expect(fires).To(Equal(2))
			Expect(s.Now()).To(Equal(TimeMs(250)))

			Expect(s.Resume()).To(Succeed())
			Expect(fires).To(Equal(7))
			Expect(s.Now()).To(Equal(TimeMs(700)))
		})
	})
})

var errBoom = boomError{}

type boomError struct{}

func (boomError) Error() string { return "boom" }
