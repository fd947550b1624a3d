package scheduler

// HookPos names a point in the dispatch loop where a Hook can observe
// the scheduler.
type HookPos struct {
	Name string
}

// HookCtx carries the information available at the site a hook is
// invoked.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Handle EventHandle
	Detail interface{}
}

// Hookable is anything that accepts Hooks.
type Hookable interface {
	AcceptHook(hook Hook)
}

// HookPosBeforeFire triggers immediately before a callback runs.
var HookPosBeforeFire = &HookPos{Name: "BeforeFire"}

// HookPosAfterFire triggers after a callback returns and the event's
// post-fire bookkeeping (reschedule or retire) is done, with
// HookCtx.Detail set to the error it returned, if any.
var HookPosAfterFire = &HookPos{Name: "AfterFire"}

// Hook is invoked by a Hookable at each of its HookPos sites.
type Hook interface {
	Func(ctx HookCtx)
}

// HookableBase implements Hookable and invocation plumbing for
// embedding into a scheduler.
type HookableBase struct {
	hooks []Hook
}

// AcceptHook registers a hook.
func (b *HookableBase) AcceptHook(hook Hook) {
	b.hooks = append(b.hooks, hook)
}

// invokeHook runs every registered hook for ctx.
func (b *HookableBase) invokeHook(ctx HookCtx) {
	for _, h := range b.hooks {
		h.Func(ctx)
	}
}
