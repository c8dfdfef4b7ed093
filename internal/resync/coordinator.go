package resync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
)

// Observer receives user-facing progress of a coordinated resync. All
// methods are called from the resync goroutine.
type Observer interface {
	ResyncStarted()
	ItemCountUpdated(count int)
	ReenumerationStarted()
	// Completed fires when the resync finished; hasResponded reports
	// whether the file provider acknowledged the reenumeration request
	// within the timeout.
	Completed(hasResponded bool)
	// Finished fires when the user dismisses the completed resync.
	Finished()
	Errored(message string)
	Cancelled()
}

// Enumerator pokes the file provider extension to re-walk its working
// set against the freshly resynced replica.
type Enumerator interface {
	SignalEnumerator(ctx context.Context) error
}

// resyncRunner is what the coordinator drives; satisfied by *Service.
type resyncRunner interface {
	Start(ctx context.Context, cb Callbacks) error
	Cancel()
	Abort()
	PreviousRunWasInterrupted() bool
}

// Coordinator wraps the resync service with the cross-process
// reenumeration handshake and progress reporting.
type Coordinator struct {
	service    resyncRunner
	flags      *SharedFlags
	enumerator Enumerator
	monitor    *Monitor
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	observer Observer
}

func NewCoordinator(service resyncRunner, flags *SharedFlags, enumerator Enumerator, timeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		service:    service,
		flags:      flags,
		enumerator: enumerator,
		monitor:    NewMonitor(logger),
		timeout:    timeout,
		logger:     logger,
	}
}

// SetObserver installs the progress observer. May be nil.
func (c *Coordinator) SetObserver(obs Observer) {
	c.mu.Lock()
	c.observer = obs
	c.mu.Unlock()
}

func (c *Coordinator) notify(fn func(Observer)) {
	c.mu.Lock()
	obs := c.observer
	c.mu.Unlock()

	if obs != nil {
		fn(obs)
	}
}

// PreviousRunWasInterrupted reports whether the last resync died
// mid-flight.
func (c *Coordinator) PreviousRunWasInterrupted() bool {
	return c.service.PreviousRunWasInterrupted()
}

// PerformFullResync runs a full resync. With onlyIfPreviouslyInterrupted
// set it is a no-op unless leftover files show an earlier run died.
func (c *Coordinator) PerformFullResync(ctx context.Context, onlyIfPreviouslyInterrupted bool) error {
	if onlyIfPreviouslyInterrupted && !c.service.PreviousRunWasInterrupted() {
		return nil
	}

	c.monitor.Begin()
	return c.perform(ctx)
}

// RetryFullResync reruns a failed resync within the same tracked
// attempt.
func (c *Coordinator) RetryFullResync(ctx context.Context) error {
	c.monitor.Retry()
	return c.perform(ctx)
}

// CancelFullResync requests cancellation of the active run.
func (c *Coordinator) CancelFullResync() {
	c.service.Cancel()
}

// FinishFullResync acknowledges a completed resync and resets the
// progress surface.
func (c *Coordinator) FinishFullResync() {
	c.notify(func(o Observer) { o.Finished() })
}

// Abort hard-stops the active run on shutdown.
func (c *Coordinator) Abort() {
	c.service.Abort()
}

func (c *Coordinator) perform(ctx context.Context) error {
	c.notify(func(o Observer) { o.ResyncStarted() })

	err := c.service.Start(ctx, Callbacks{
		OnNodesRefreshed: func(total int) {
			c.notify(func(o Observer) { o.ItemCountUpdated(total) })
		},
		OnDoneResyncing: c.handoff,
	})

	switch {
	case err == nil:
		c.monitor.ReportEnd(statusCompleted, nil)
	case errors.Is(err, apperrors.ErrCancelled):
		c.monitor.ReportEnd(statusCancelled, nil)
		c.notify(func(o Observer) { o.Cancelled() })
	case errors.Is(err, apperrors.ErrResyncInProgress):
		// Not a terminal outcome for the tracked attempt.
	default:
		c.monitor.ReportEnd(statusErrored, err)
		c.notify(func(o Observer) { o.Errored(err.Error()) })
	}

	return err
}

// handoff asks the file provider to re-enumerate against the new
// replica and waits for it to respond. The in-progress flag is cleared
// on every path so a dead extension cannot wedge the next resync.
func (c *Coordinator) handoff(ctx context.Context) error {
	if err := c.flags.SetShouldReenumerate(true); err != nil {
		return err
	}
	// Raised here, cleared by the file provider once it has re-walked
	// its working set. Seeing it still raised after the timeout means
	// the provider never responded.
	if err := c.flags.SetEnumerationInProgress(true); err != nil {
		return err
	}
	defer func() {
		if err := c.flags.SetEnumerationInProgress(false); err != nil {
			c.logger.Warn("clearing enumeration flag", slog.String("error", err.Error()))
		}
	}()

	c.notify(func(o Observer) { o.ReenumerationStarted() })

	if err := c.enumerator.SignalEnumerator(ctx); err != nil {
		c.logger.Warn("signalling enumerator", slog.String("error", err.Error()))
		c.notify(func(o Observer) { o.Completed(false) })
		return nil
	}

	responded, err := c.flags.AwaitEnumerationDone(ctx, c.timeout)
	if err != nil {
		c.logger.Warn("waiting for enumeration", slog.String("error", err.Error()))
	}
	if !responded {
		c.logger.Warn("file provider did not respond to reenumeration request",
			slog.Duration("timeout", c.timeout))
	}

	c.notify(func(o Observer) { o.Completed(responded) })
	return nil
}
