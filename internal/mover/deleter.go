package mover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/store"
	"golang.org/x/sync/errgroup"
)

const deleteWorkers = 4

// DeleteClient is the subset of the API client permanent deletion uses.
type DeleteClient interface {
	DeleteTrashed(ctx context.Context, volumeID string, linkIDs []string) ([]api.PartialFailure, error)
}

// TrashedNodeDeleter permanently deletes trashed nodes. Confirmed nodes
// and their local descendants are marked for removal rather than
// removed immediately, so cleanup of cached content can happen first.
type TrashedNodeDeleter struct {
	nodes  *store.NodeStore
	client DeleteClient
	logger *slog.Logger
}

func NewTrashedNodeDeleter(nodes *store.NodeStore, client DeleteClient, logger *slog.Logger) *TrashedNodeDeleter {
	return &TrashedNodeDeleter{nodes: nodes, client: client, logger: logger}
}

// Delete permanently deletes the given trashed nodes. Chunks run
// concurrently; a node already deleted remotely counts as success.
func (d *TrashedNodeDeleter) Delete(ctx context.Context, refs []store.Ref) error {
	byVolume := make(map[string][]string)
	for _, ref := range refs {
		byVolume[ref.VolumeID] = append(byVolume[ref.VolumeID], ref.NodeID)
	}

	type chunkJob struct {
		volumeID string
		ids      []string
	}
	var jobs []chunkJob
	for volumeID, ids := range byVolume {
		for start := 0; start < len(ids); start += trashBatchSize {
			jobs = append(jobs, chunkJob{
				volumeID: volumeID,
				ids:      ids[start:min(start+trashBatchSize, len(ids))],
			})
		}
	}

	var (
		mu        sync.Mutex
		confirmed []string
	)
	errs := make([]error, len(jobs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(deleteWorkers)

	for i, job := range jobs {
		group.Go(func() error {
			deleted, err := d.deleteChunk(groupCtx, job.volumeID, job.ids)
			errs[i] = err
			mu.Lock()
			confirmed = append(confirmed, deleted...)
			mu.Unlock()
			return nil
		})
	}
	group.Wait()

	if len(confirmed) > 0 {
		if err := d.nodes.MarkToBeDeleted(confirmed); err != nil {
			return err
		}
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// deleteChunk sends one chunk and returns the IDs the remote confirmed
// deleted, counting already-deleted nodes as confirmed.
func (d *TrashedNodeDeleter) deleteChunk(ctx context.Context, volumeID string, chunk []string) ([]string, error) {
	failures, err := d.client.DeleteTrashed(ctx, volumeID, chunk)
	if err != nil {
		return nil, fmt.Errorf("deleting %d trashed nodes in volume %s: %w", len(chunk), volumeID, err)
	}

	failed := make(map[string]bool, len(failures))
	var firstFailure *api.PartialFailure
	for _, f := range failures {
		if f.Code == api.CodeItemOrParentDeleted {
			continue
		}
		failed[f.ID] = true
		if firstFailure == nil {
			failure := f
			firstFailure = &failure
		}
	}

	var confirmed []string
	for _, id := range chunk {
		if !failed[id] {
			confirmed = append(confirmed, id)
		}
	}

	if firstFailure != nil {
		d.logger.Warn("some trashed nodes could not be deleted",
			slog.Int("failed", len(failed)),
			slog.String("error", firstFailure.Message),
		)
		return confirmed, firstFailure.Err()
	}

	return confirmed, nil
}
