package mover

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/store"
	"golang.org/x/sync/errgroup"
)

// moveBatchSize is the remote limit on links per move-multiple request.
const moveBatchSize = 100

// MoveMultipleFunc performs one move-multiple request.
type MoveMultipleFunc func(ctx context.Context, volumeID string, params api.MoveMultipleParameters) error

// MultipleNodeMover moves many nodes to one destination folder in
// batches. Each batch succeeds or fails as a whole remotely; locally,
// every node from every successful batch is reconciled in a single
// transaction at the end, so a crash between batches never leaves a
// half-applied batch in the replica.
type MultipleNodeMover struct {
	nodes        *store.NodeStore
	reader       *CryptoMaterialReader
	factory      *LinkFactory
	moveMultiple MoveMultipleFunc
	logger       *slog.Logger
}

func NewMultipleNodeMover(nodes *store.NodeStore, reader *CryptoMaterialReader, factory *LinkFactory, moveMultiple MoveMultipleFunc, logger *slog.Logger) *MultipleNodeMover {
	return &MultipleNodeMover{
		nodes:        nodes,
		reader:       reader,
		factory:      factory,
		moveMultiple: moveMultiple,
		logger:       logger,
	}
}

// Move moves all nodeIDs under newParentID. When some nodes fail
// preparation or some batches fail remotely, the surviving nodes are
// still moved and reconciled, and the first request error wins over the
// first preparation error in the returned value.
func (m *MultipleNodeMover) Move(ctx context.Context, nodeIDs []string, newParentID string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	dest, err := m.reader.ReadDestination(newParentID)
	if err != nil {
		return err
	}

	links, factoryErr := m.factory.PrepareNodeLinks(ctx, nodeIDs, dest)
	if factoryErr != nil {
		m.logger.Warn("some nodes could not be prepared for move",
			slog.Int("requested", len(nodeIDs)),
			slog.Int("prepared", len(links)),
			slog.String("error", factoryErr.Error()),
		)
	}
	if len(links) == 0 {
		return nil
	}

	// One signer for the whole operation, taken from the first prepared
	// link and applied to both signature fields of every batch.
	signer := links[0].SignatureEmail
	requestErr := m.moveBatches(ctx, dest, signer, chunkLinks(links, moveBatchSize))

	if requestErr != nil {
		return requestErr
	}
	return factoryErr
}

// moveBatches runs the batches concurrently, then reconciles every
// confirmed node in one transaction. Returns the first request error.
func (m *MultipleNodeMover) moveBatches(ctx context.Context, dest NodeParentCryptoMaterial, signer string, batches [][]LinkInfo) error {
	var (
		mu        sync.Mutex
		confirmed []store.MoveUpdate
	)
	errs := make([]error, len(batches))

	group, groupCtx := errgroup.WithContext(ctx)

	for i, batch := range batches {
		group.Go(func() error {
			params := api.MoveMultipleParameters{
				ParentLinkID:       dest.NodeID,
				Links:              moveLinks(batch),
				NameSignatureEmail: signer,
				SignatureEmail:     signer,
			}

			if err := m.moveMultiple(groupCtx, dest.VolumeID, params); err != nil {
				errs[i] = err
				return nil
			}

			mu.Lock()
			confirmed = append(confirmed, moveUpdates(batch, signer)...)
			mu.Unlock()
			return nil
		})
	}
	group.Wait()

	if len(confirmed) > 0 {
		if err := m.nodes.ApplyMoves(dest.NodeID, confirmed); err != nil {
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

func moveLinks(batch []LinkInfo) []api.MoveLink {
	links := make([]api.MoveLink, len(batch))
	for i, info := range batch {
		links[i] = info.Link
	}
	return links
}

func moveUpdates(batch []LinkInfo, signerEmail string) []store.MoveUpdate {
	updates := make([]store.MoveUpdate, len(batch))
	for i, info := range batch {
		u := store.MoveUpdate{
			NodeID:         info.Link.LinkID,
			Name:           info.Link.Name,
			NameHash:       info.Link.Hash,
			NodePassphrase: info.Link.NodePassphrase,
			Anonymous:      info.IsAnonymous,
		}
		if info.IsAnonymous {
			if info.Link.NodePassphraseSignature != nil {
				u.PassphraseSignature = *info.Link.NodePassphraseSignature
			}
			u.SignatureEmail = signerEmail
		}
		updates[i] = u
	}
	return updates
}

func chunkLinks(links []LinkInfo, size int) [][]LinkInfo {
	var batches [][]LinkInfo
	for len(links) > 0 {
		n := min(size, len(links))
		batches = append(batches, links[:n])
		links = links[n:]
	}
	return batches
}
