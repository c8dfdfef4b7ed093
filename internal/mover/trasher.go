package mover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/store"
)

// trashBatchSize is the remote limit on links per trash request.
const trashBatchSize = 150

// TrashClient is the subset of the API client trashing uses.
type TrashClient interface {
	Trash(ctx context.Context, volumeID string, linkIDs []string) ([]api.PartialFailure, error)
}

// NodeTrasher moves nodes to the remote trash and marks the confirmed
// subset deleted locally. The remote reports per-node partial failures;
// everything not reported failed is trashed.
type NodeTrasher struct {
	nodes  *store.NodeStore
	client TrashClient
	logger *slog.Logger

	// cancelDownloads, when set, is called with the confirmed IDs
	// before they are marked deleted, so in-flight transfers stop
	// before the replica forgets them.
	cancelDownloads func(nodeIDs []string)
}

func NewNodeTrasher(nodes *store.NodeStore, client TrashClient, cancelDownloads func([]string), logger *slog.Logger) *NodeTrasher {
	return &NodeTrasher{
		nodes:           nodes,
		client:          client,
		cancelDownloads: cancelDownloads,
		logger:          logger,
	}
}

// Trash trashes the given nodes. Refs may span volumes; each volume's
// nodes are chunked and sent sequentially. A node the remote reports as
// already deleted counts as success and is removed from the replica
// outright.
func (t *NodeTrasher) Trash(ctx context.Context, refs []store.Ref) error {
	byVolume := make(map[string][]string)
	var volumes []string
	for _, ref := range refs {
		if _, ok := byVolume[ref.VolumeID]; !ok {
			volumes = append(volumes, ref.VolumeID)
		}
		byVolume[ref.VolumeID] = append(byVolume[ref.VolumeID], ref.NodeID)
	}

	var firstRequestErr error
	var firstFailure *api.PartialFailure

	for _, volumeID := range volumes {
		ids := byVolume[volumeID]
		for start := 0; start < len(ids); start += trashBatchSize {
			chunk := ids[start:min(start+trashBatchSize, len(ids))]

			failure, err := t.trashChunk(ctx, volumeID, chunk)
			if err != nil && firstRequestErr == nil {
				firstRequestErr = err
			}
			if failure != nil && firstFailure == nil {
				firstFailure = failure
			}
		}
	}

	if firstRequestErr != nil {
		return firstRequestErr
	}
	if firstFailure != nil {
		return firstFailure.Err()
	}
	return nil
}

// trashChunk sends one chunk and reconciles its outcome. Returns the
// first residual per-node failure, if any.
func (t *NodeTrasher) trashChunk(ctx context.Context, volumeID string, chunk []string) (*api.PartialFailure, error) {
	failures, err := t.client.Trash(ctx, volumeID, chunk)
	if err != nil {
		return nil, fmt.Errorf("trashing %d nodes in volume %s: %w", len(chunk), volumeID, err)
	}

	failed := make(map[string]bool, len(failures))
	var alreadyGone []string
	var firstFailure *api.PartialFailure

	for _, f := range failures {
		if f.Code == api.CodeItemOrParentDeleted {
			alreadyGone = append(alreadyGone, f.ID)
			continue
		}
		failed[f.ID] = true
		if firstFailure == nil {
			failure := f
			firstFailure = &failure
		}
	}

	var trashed []string
	for _, id := range chunk {
		if !failed[id] {
			trashed = append(trashed, id)
		}
	}

	if t.cancelDownloads != nil && len(trashed) > 0 {
		t.cancelDownloads(trashed)
	}

	if len(alreadyGone) > 0 {
		t.logger.Info("nodes already deleted remotely, dropping locally",
			slog.Int("count", len(alreadyGone)))
		if err := t.nodes.DeleteNodes(alreadyGone); err != nil {
			return firstFailure, err
		}
	}

	marked := trashed
	if len(alreadyGone) > 0 {
		gone := make(map[string]bool, len(alreadyGone))
		for _, id := range alreadyGone {
			gone[id] = true
		}
		marked = marked[:0:0]
		for _, id := range trashed {
			if !gone[id] {
				marked = append(marked, id)
			}
		}
	}

	if len(marked) > 0 {
		if err := t.nodes.MarkDeleted(marked); err != nil {
			return firstFailure, err
		}
	}

	return firstFailure, nil
}
