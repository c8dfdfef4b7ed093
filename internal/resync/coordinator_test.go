package resync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
)

// fakeRunner drives the coordinator callbacks without a real resync.
type fakeRunner struct {
	interrupted bool
	startErr    error
	started     int
	cancelled   bool
	aborted     bool

	// progress to report before invoking the handoff.
	progress int
	handoff  bool
}

func (f *fakeRunner) Start(ctx context.Context, cb Callbacks) error {
	f.started++
	if f.startErr != nil {
		return f.startErr
	}
	if cb.OnNodesRefreshed != nil && f.progress > 0 {
		cb.OnNodesRefreshed(f.progress)
	}
	if cb.OnDoneResyncing != nil && f.handoff {
		if err := cb.OnDoneResyncing(ctx); err != nil {
			return err
		}
	}
	if cb.OnCompleted != nil {
		cb.OnCompleted()
	}
	return nil
}

func (f *fakeRunner) Cancel()                         { f.cancelled = true }
func (f *fakeRunner) Abort()                          { f.aborted = true }
func (f *fakeRunner) PreviousRunWasInterrupted() bool { return f.interrupted }

type fakeEnumerator struct {
	mu       sync.Mutex
	signals  int
	err      error
	onSignal func()
}

func (f *fakeEnumerator) SignalEnumerator(context.Context) error {
	f.mu.Lock()
	f.signals++
	hook := f.onSignal
	err := f.err
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// recordingObserver captures the observer call sequence.
type recordingObserver struct {
	mu     sync.Mutex
	calls  []string
	counts []int
}

func (o *recordingObserver) record(call string) {
	o.mu.Lock()
	o.calls = append(o.calls, call)
	o.mu.Unlock()
}

func (o *recordingObserver) ResyncStarted()        { o.record("started") }
func (o *recordingObserver) ReenumerationStarted() { o.record("reenumeration") }
func (o *recordingObserver) Finished()             { o.record("finished") }
func (o *recordingObserver) Cancelled()            { o.record("cancelled") }
func (o *recordingObserver) Errored(string)        { o.record("errored") }

func (o *recordingObserver) ItemCountUpdated(count int) {
	o.mu.Lock()
	o.counts = append(o.counts, count)
	o.mu.Unlock()
	o.record("count")
}

func (o *recordingObserver) Completed(hasResponded bool) {
	if hasResponded {
		o.record("completed:responded")
	} else {
		o.record("completed:timeout")
	}
}

func newCoordinator(t *testing.T, runner *fakeRunner, enum *fakeEnumerator, timeout time.Duration) (*Coordinator, *SharedFlags, *recordingObserver) {
	t.Helper()
	flags := NewSharedFlags(t.TempDir())
	c := NewCoordinator(runner, flags, enum, timeout, discardLogger())
	obs := &recordingObserver{}
	c.SetObserver(obs)
	return c, flags, obs
}

func TestPerformFullResync_HappyHandshake(t *testing.T) {
	runner := &fakeRunner{progress: 7, handoff: true}
	enum := &fakeEnumerator{}
	c, flags, obs := newCoordinator(t, runner, enum, 5*time.Second)

	// The "file provider" side: clears the in-progress flag the
	// coordinator raised, acknowledging the reenumeration request.
	enum.onSignal = func() {
		flags.SetEnumerationInProgress(false)
	}

	require.NoError(t, c.PerformFullResync(context.Background(), false))

	assert.Equal(t, 1, enum.signals)
	assert.Equal(t, []string{"started", "count", "reenumeration", "completed:responded"}, obs.calls)
	assert.Equal(t, []int{7}, obs.counts)

	should, err := flags.ShouldReenumerate()
	require.NoError(t, err)
	assert.True(t, should)

	inProgress, err := flags.EnumerationInProgress()
	require.NoError(t, err)
	assert.False(t, inProgress)
}

func TestPerformFullResync_DeadProviderReportsUnresponsive(t *testing.T) {
	runner := &fakeRunner{handoff: true}
	enum := &fakeEnumerator{}
	c, flags, obs := newCoordinator(t, runner, enum, 100*time.Millisecond)

	// The signal lands but nothing on the other side ever clears the
	// in-progress flag the coordinator raised.
	require.NoError(t, c.PerformFullResync(context.Background(), false))

	assert.Equal(t, 1, enum.signals)
	assert.Contains(t, obs.calls, "completed:timeout")
	assert.NotContains(t, obs.calls, "completed:responded")

	// The in-progress flag is cleared even on timeout.
	inProgress, err := flags.EnumerationInProgress()
	require.NoError(t, err)
	assert.False(t, inProgress)
}

func TestPerformFullResync_OnlyIfInterrupted(t *testing.T) {
	runner := &fakeRunner{interrupted: false}
	c, _, _ := newCoordinator(t, runner, &fakeEnumerator{}, time.Second)

	require.NoError(t, c.PerformFullResync(context.Background(), true))
	assert.Zero(t, runner.started)

	runner.interrupted = true
	require.NoError(t, c.PerformFullResync(context.Background(), true))
	assert.Equal(t, 1, runner.started)
}

func TestPerformFullResync_ErrorNotifiesObserver(t *testing.T) {
	runner := &fakeRunner{startErr: errors.New("refresh exploded")}
	c, _, obs := newCoordinator(t, runner, &fakeEnumerator{}, time.Second)

	err := c.PerformFullResync(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, []string{"started", "errored"}, obs.calls)
}

func TestPerformFullResync_CancelNotifiesObserver(t *testing.T) {
	runner := &fakeRunner{startErr: apperrors.ErrCancelled}
	c, _, obs := newCoordinator(t, runner, &fakeEnumerator{}, time.Second)

	err := c.PerformFullResync(context.Background(), false)
	assert.ErrorIs(t, err, apperrors.ErrCancelled)
	assert.Equal(t, []string{"started", "cancelled"}, obs.calls)
}

func TestCancelAndAbortDelegate(t *testing.T) {
	runner := &fakeRunner{}
	c, _, _ := newCoordinator(t, runner, &fakeEnumerator{}, time.Second)

	c.CancelFullResync()
	assert.True(t, runner.cancelled)

	c.Abort()
	assert.True(t, runner.aborted)
}

func TestFinishFullResync_NotifiesObserver(t *testing.T) {
	c, _, obs := newCoordinator(t, &fakeRunner{}, &fakeEnumerator{}, time.Second)
	c.FinishFullResync()
	assert.Equal(t, []string{"finished"}, obs.calls)
}

func TestRetryFullResync_RunsAgain(t *testing.T) {
	runner := &fakeRunner{}
	c, _, _ := newCoordinator(t, runner, &fakeEnumerator{}, time.Second)

	require.NoError(t, c.PerformFullResync(context.Background(), false))
	require.NoError(t, c.RetryFullResync(context.Background()))
	assert.Equal(t, 2, runner.started)
}
