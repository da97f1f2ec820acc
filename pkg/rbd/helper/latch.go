package helper

import "sync/atomic"

// A one way latch. The only accepted transition is from open
// to fired, and only one caller will ever win it. The creation
// pipeline uses it to guarantee the completion continuation is
// invoked exactly once.
type Latch struct {
	fired int32
}

// Fire the latch. Returns `true` only for the single caller
// that performed the transition, every later call returns
// `false`.
func (l *Latch) Fire() bool {
	return atomic.CompareAndSwapInt32(&l.fired, 0, 1)
}

// Fired tells if the latch was already fired.
func (l *Latch) Fired() bool {
	return atomic.LoadInt32(&l.fired) == 1
}
