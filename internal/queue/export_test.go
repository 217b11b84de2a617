package queue

import "time"

// SetNow overrides the engine's wall clock so tests can drive lease expiry
// and retention deterministically instead of sleeping.
func (e *Engine) SetNow(fn func() time.Time) { e.now = fn }
