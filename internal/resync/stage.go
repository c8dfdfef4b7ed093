package resync

import "github.com/alexjbarnes/drive-sync/internal/store"

// stageKind enumerates how far a resync run has progressed. Error
// handling unwinds from the current stage back towards idle, undoing
// exactly what each stage set up.
type stageKind int

const (
	stageIdle stageKind = iota
	stageEventsStopped
	stageMetadataRecoverySetup
	stageEventRecoverySetup
	stageRefreshFinished
	stageMetadataReplaced
	stageEventsReplaced
)

func (k stageKind) String() string {
	switch k {
	case stageIdle:
		return "idle"
	case stageEventsStopped:
		return "eventsStopped"
	case stageMetadataRecoverySetup:
		return "metadataRecoverySetup"
	case stageEventRecoverySetup:
		return "eventRecoverySetup"
	case stageRefreshFinished:
		return "refreshFinished"
	case stageMetadataReplaced:
		return "metadataReplacedWithRecovery"
	case stageEventsReplaced:
		return "eventsReplacedWithRecovery"
	default:
		return "unknown"
	}
}

// stage is the current progress marker plus the database handles the
// later stages need to commit or roll back.
type stage struct {
	kind stageKind

	metadataExisting store.Info
	metadataRecovery store.Info
	eventsExisting   store.Info
	eventsRecovery   store.Info
}

// cancellable reports whether the run can still be abandoned without
// losing data. After the metadata replace has happened the old replica
// is gone, so the run must push through to the end.
func (s stage) cancellable() bool {
	switch s.kind {
	case stageMetadataReplaced, stageEventsReplaced:
		return false
	default:
		return true
	}
}
