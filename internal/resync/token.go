package resync

import "sync/atomic"

// CancelToken is a one-shot cancellation flag shared between the resync
// run and the caller. It is checked between steps rather than
// interrupting them; once the refreshed data has been committed the
// token is detached and cancellation no longer applies.
type CancelToken struct {
	cancelled atomic.Bool
}

func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}
