// Package resync implements full metadata resynchronization: the local
// replica is rebuilt from the remote listing into recovery databases
// and swapped in atomically, with crash detection and staged rollback
// on failure.
package resync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"github.com/alexjbarnes/drive-sync/internal/store"
)

// RecoverableStore is the database-swap surface of a recoverable
// database pair.
type RecoverableStore interface {
	DisconnectExisting() (store.Info, error)
	CreateRecovery(nextTo store.Info) (store.Info, error)
	ReconnectExistingAndDiscardRecovery(existing store.Info, recovery *store.Info) error
	ReplaceExistingWithRecovery(existing, recovery store.Info) error
	CleanupLeftovers() bool
	PreviousRunWasInterrupted() bool
}

// RefreshFunc walks the remote tree into the metadata recovery
// database. cancelled is polled between listing pages; onProgress
// receives cumulative node counts.
type RefreshFunc func(ctx context.Context, cancelled func() bool, onProgress func(total int)) error

// Callbacks observe one resync run. Any field may be nil.
type Callbacks struct {
	// OnNodesRefreshed reports the cumulative refreshed node count.
	OnNodesRefreshed func(total int)
	// OnDoneResyncing fires after the recovery databases were swapped
	// in and the event stream re-anchored, before events restart. An
	// error here does not undo the swap; it is reported but the run
	// still completes.
	OnDoneResyncing func(ctx context.Context) error
	OnCompleted     func()
	OnCancelled     func()
	OnErrored       func(err error)
}

// Service drives one full resync at a time through its stages, and
// unwinds the completed stages in reverse on failure. Cancellation is
// cooperative: it is honored between steps up to the point where the
// old replica has been replaced, after which the run always finishes.
type Service struct {
	metadata RecoverableStore
	events   RecoverableStore

	refresh           RefreshFunc
	startEvents       func()
	pauseEvents       func()
	reinitializeEvents func(ctx context.Context) error

	logger *slog.Logger

	mu    sync.Mutex
	stage stage
	token *CancelToken
}

func NewService(
	metadata, events RecoverableStore,
	refresh RefreshFunc,
	startEvents, pauseEvents func(),
	reinitializeEvents func(ctx context.Context) error,
	logger *slog.Logger,
) *Service {
	return &Service{
		metadata:           metadata,
		events:             events,
		refresh:            refresh,
		startEvents:        startEvents,
		pauseEvents:        pauseEvents,
		reinitializeEvents: reinitializeEvents,
		logger:             logger,
		stage:              stage{kind: stageIdle},
	}
}

// PreviousRunWasInterrupted reports whether leftover recovery or backup
// files from an earlier run were found on disk, meaning a resync died
// mid-flight and the replica cannot be trusted.
func (s *Service) PreviousRunWasInterrupted() bool {
	return s.metadata.PreviousRunWasInterrupted() || s.events.PreviousRunWasInterrupted()
}

// Start runs a full resync to completion. It returns
// ErrResyncInProgress when a run is already active.
func (s *Service) Start(ctx context.Context, cb Callbacks) error {
	s.mu.Lock()
	if s.stage.kind != stageIdle {
		s.mu.Unlock()
		return apperrors.ErrResyncInProgress
	}
	s.token = &CancelToken{}
	s.mu.Unlock()

	s.logger.Info("full resync starting")
	err := s.run(ctx, cb)
	if err == nil {
		s.logger.Info("full resync completed")
	}
	return err
}

// Cancel requests cooperative cancellation of the active run. If the
// run has passed the point of no return the request is ignored.
func (s *Service) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return
	}
	if !s.stage.cancellable() {
		s.logger.Info("cancel ignored, resync past the point of no return",
			slog.String("stage", s.stage.kind.String()))
		return
	}
	s.token.Cancel()
}

// Abort forces the service back to idle without unwinding. Used on
// shutdown when there is no point rolling back; leftover files are
// detected as an interrupted run on next start.
func (s *Service) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil {
		s.token.Cancel()
	}
	s.stage = stage{kind: stageIdle}
	s.token = nil
}

func (s *Service) run(ctx context.Context, cb Callbacks) error {
	// Sweep recovery and backup files left by an earlier attempt so
	// this run starts from a clean slate.
	if err := s.performIfNotCancelled(func() error {
		s.metadata.CleanupLeftovers()
		s.events.CleanupLeftovers()
		return nil
	}); err != nil {
		return s.handleError(ctx, cb, err)
	}

	// Stop live event processing so nothing mutates the replica while
	// it is being rebuilt.
	s.pauseEvents()
	s.setStageKind(stageEventsStopped)

	if err := s.performIfNotCancelled(func() error { return s.setupMetadataRecovery() }); err != nil {
		return s.handleError(ctx, cb, err)
	}

	if err := s.performIfNotCancelled(func() error { return s.setupEventRecovery() }); err != nil {
		return s.handleError(ctx, cb, err)
	}

	if err := s.performIfNotCancelled(func() error {
		return s.refresh(ctx, s.isCancelled, cb.OnNodesRefreshed)
	}); err != nil {
		return s.handleError(ctx, cb, err)
	}
	s.setStageKind(stageRefreshFinished)

	// The refresh is the last cancellable step. From here the run
	// commits, so detach the token.
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()

	if err := s.replaceMetadata(); err != nil {
		return s.handleError(ctx, cb, err)
	}

	if err := s.replaceEvents(); err != nil {
		return s.handleError(ctx, cb, err)
	}

	if err := s.reinitializeEvents(ctx); err != nil {
		s.logger.Warn("reinitializing event stream after resync", slog.String("error", err.Error()))
	}

	if cb.OnDoneResyncing != nil {
		if err := cb.OnDoneResyncing(ctx); err != nil {
			s.logger.Warn("post-resync handoff", slog.String("error", err.Error()))
		}
	}

	s.startEvents()
	s.setStage(stage{kind: stageIdle})

	if cb.OnCompleted != nil {
		cb.OnCompleted()
	}
	return nil
}

func (s *Service) setupMetadataRecovery() error {
	existing, err := s.metadata.DisconnectExisting()
	if err != nil {
		return fmt.Errorf("disconnecting metadata database: %w", err)
	}
	recovery, err := s.metadata.CreateRecovery(existing)
	if err != nil {
		// Reconnect what we just disconnected; stage stays pre-setup.
		if reErr := s.metadata.ReconnectExistingAndDiscardRecovery(existing, nil); reErr != nil {
			s.logger.Error("reconnecting metadata database after failed recovery setup",
				slog.String("error", reErr.Error()))
		}
		return fmt.Errorf("creating metadata recovery database: %w", err)
	}

	s.mu.Lock()
	s.stage.kind = stageMetadataRecoverySetup
	s.stage.metadataExisting = existing
	s.stage.metadataRecovery = recovery
	s.mu.Unlock()
	return nil
}

func (s *Service) setupEventRecovery() error {
	existing, err := s.events.DisconnectExisting()
	if err != nil {
		return fmt.Errorf("disconnecting event database: %w", err)
	}
	recovery, err := s.events.CreateRecovery(existing)
	if err != nil {
		if reErr := s.events.ReconnectExistingAndDiscardRecovery(existing, nil); reErr != nil {
			s.logger.Error("reconnecting event database after failed recovery setup",
				slog.String("error", reErr.Error()))
		}
		return fmt.Errorf("creating event recovery database: %w", err)
	}

	s.mu.Lock()
	s.stage.kind = stageEventRecoverySetup
	s.stage.eventsExisting = existing
	s.stage.eventsRecovery = recovery
	s.mu.Unlock()
	return nil
}

func (s *Service) replaceMetadata() error {
	s.mu.Lock()
	existing, recovery := s.stage.metadataExisting, s.stage.metadataRecovery
	s.mu.Unlock()

	if err := s.metadata.ReplaceExistingWithRecovery(existing, recovery); err != nil {
		return fmt.Errorf("replacing metadata database: %w", err)
	}
	s.setStageKind(stageMetadataReplaced)
	return nil
}

func (s *Service) replaceEvents() error {
	s.mu.Lock()
	existing, recovery := s.stage.eventsExisting, s.stage.eventsRecovery
	s.mu.Unlock()

	if err := s.events.ReplaceExistingWithRecovery(existing, recovery); err != nil {
		return fmt.Errorf("replacing event database: %w", err)
	}
	s.setStageKind(stageEventsReplaced)
	return nil
}

// handleError unwinds the current stage one step towards idle and
// recurses, so each partially completed setup is undone in reverse
// order regardless of where the failure happened.
func (s *Service) handleError(ctx context.Context, cb Callbacks, err error) error {
	s.mu.Lock()
	kind := s.stage.kind
	st := s.stage
	s.mu.Unlock()

	switch kind {
	case stageRefreshFinished, stageEventRecoverySetup:
		if reErr := s.events.ReconnectExistingAndDiscardRecovery(st.eventsExisting, &st.eventsRecovery); reErr != nil {
			s.logger.Error("discarding event recovery database", slog.String("error", reErr.Error()))
			s.events.CleanupLeftovers()
		}
		s.setStageKind(stageMetadataRecoverySetup)
		return s.handleError(ctx, cb, err)

	case stageMetadataRecoverySetup:
		if reErr := s.metadata.ReconnectExistingAndDiscardRecovery(st.metadataExisting, &st.metadataRecovery); reErr != nil {
			s.logger.Error("discarding metadata recovery database", slog.String("error", reErr.Error()))
			s.metadata.CleanupLeftovers()
		}
		s.setStageKind(stageEventsStopped)
		return s.handleError(ctx, cb, err)

	case stageEventsStopped:
		s.startEvents()
		s.setStage(stage{kind: stageIdle})
		return s.handleError(ctx, cb, err)

	case stageMetadataReplaced:
		// The metadata swap committed but the event swap failed. The new
		// metadata stays; restore the event database so the stream has a
		// cursor store to work against.
		if reErr := s.events.ReconnectExistingAndDiscardRecovery(st.eventsExisting, &st.eventsRecovery); reErr != nil {
			s.logger.Error("restoring event database after failed swap", slog.String("error", reErr.Error()))
			s.events.CleanupLeftovers()
		}
		s.setStageKind(stageEventsReplaced)
		return s.handleError(ctx, cb, err)

	case stageEventsReplaced:
		// Both swaps committed; re-anchor the stream at the new replica
		// and restart it. If reinitialization fails the stream stays
		// down until the next start, which is still better than running
		// against a stale cursor.
		if reinitErr := s.reinitializeEvents(ctx); reinitErr != nil {
			s.logger.Error("reinitializing event stream", slog.String("error", reinitErr.Error()))
		} else {
			s.startEvents()
		}
		s.setStage(stage{kind: stageIdle})
		return s.handleError(ctx, cb, err)

	default: // stageIdle: unwind finished, report.
		s.mu.Lock()
		s.token = nil
		s.mu.Unlock()

		if errors.Is(err, apperrors.ErrCancelled) {
			s.logger.Info("full resync cancelled")
			if cb.OnCancelled != nil {
				cb.OnCancelled()
			}
			return err
		}

		s.logger.Error("full resync failed", slog.String("error", err.Error()))
		if cb.OnErrored != nil {
			cb.OnErrored(err)
		}
		return err
	}
}

func (s *Service) performIfNotCancelled(step func() error) error {
	if s.isCancelled() {
		return apperrors.ErrCancelled
	}
	return step()
}

func (s *Service) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil && s.token.IsCancelled()
}

func (s *Service) setStageKind(kind stageKind) {
	s.mu.Lock()
	s.stage.kind = kind
	s.mu.Unlock()
}

func (s *Service) setStage(st stage) {
	s.mu.Lock()
	s.stage = st
	s.mu.Unlock()
}
