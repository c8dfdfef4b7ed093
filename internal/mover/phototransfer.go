package mover

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/store"
	"golang.org/x/sync/errgroup"
)

// TransferMultipleFunc performs one photo transfer-multiple request.
type TransferMultipleFunc func(ctx context.Context, volumeID string, params api.TransferMultipleParameters) error

// MultiplePhotoTransfer moves photos between albums. It differs from a
// plain multi-move in two ways: a requested photo drags its burst and
// variant children along in the same batch, and the endpoint requires a
// uniform signing mode per request, so anonymous and normal photo
// families are sent in separate requests, run concurrently.
type MultiplePhotoTransfer struct {
	nodes    *store.NodeStore
	reader   *CryptoMaterialReader
	factory  *LinkFactory
	transfer TransferMultipleFunc
	logger   *slog.Logger
}

func NewMultiplePhotoTransfer(nodes *store.NodeStore, reader *CryptoMaterialReader, factory *LinkFactory, transfer TransferMultipleFunc, logger *slog.Logger) *MultiplePhotoTransfer {
	return &MultiplePhotoTransfer{
		nodes:    nodes,
		reader:   reader,
		factory:  factory,
		transfer: transfer,
		logger:   logger,
	}
}

// photoFamily is one main photo with its burst/variant children.
type photoFamily struct {
	ids       []string
	anonymous bool
}

// Transfer moves the given photos, plus their burst children, under
// newParentID.
func (t *MultiplePhotoTransfer) Transfer(ctx context.Context, photoIDs []string, newParentID string) error {
	if len(photoIDs) == 0 {
		return nil
	}

	dest, err := t.reader.ReadDestination(newParentID)
	if err != nil {
		return err
	}

	families, err := t.expandFamilies(photoIDs)
	if err != nil {
		return err
	}

	var normal, anonymous []photoFamily
	for _, fam := range families {
		if fam.anonymous {
			anonymous = append(anonymous, fam)
		} else {
			normal = append(normal, fam)
		}
	}

	var (
		mu        sync.Mutex
		confirmed []store.MoveUpdate
	)
	errs := make([]error, 2)

	group, groupCtx := errgroup.WithContext(ctx)
	for i, run := range []struct {
		families  []photoFamily
		anonymous bool
	}{
		{normal, false},
		{anonymous, true},
	} {
		group.Go(func() error {
			updates, err := t.transferGroup(groupCtx, dest, run.families, run.anonymous)
			mu.Lock()
			confirmed = append(confirmed, updates...)
			mu.Unlock()
			errs[i] = err
			return nil
		})
	}
	group.Wait()

	if len(confirmed) > 0 {
		if err := t.nodes.ApplyMoves(dest.NodeID, confirmed); err != nil {
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

// expandFamilies resolves each requested photo into its full family and
// tags it with the main photo's signing mode.
func (t *MultiplePhotoTransfer) expandFamilies(photoIDs []string) ([]photoFamily, error) {
	families := make([]photoFamily, 0, len(photoIDs))
	for _, id := range photoIDs {
		main, err := t.nodes.GetNode(id)
		if err != nil {
			return nil, err
		}
		if main == nil {
			continue
		}

		fam := photoFamily{ids: []string{id}, anonymous: main.IsAnonymous()}
		children, err := t.nodes.BurstChildren(id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			fam.ids = append(fam.ids, child.NodeID)
		}

		families = append(families, fam)
	}

	return families, nil
}

// transferGroup batches whole families up to the request limit, runs the
// requests, and returns the updates of every confirmed batch. A family
// is never split across batches.
func (t *MultiplePhotoTransfer) transferGroup(ctx context.Context, dest NodeParentCryptoMaterial, families []photoFamily, anonymous bool) ([]store.MoveUpdate, error) {
	if len(families) == 0 {
		return nil, nil
	}

	var batches [][]string
	var current []string
	for _, fam := range families {
		if len(current) > 0 && len(current)+len(fam.ids) > moveBatchSize {
			batches = append(batches, current)
			current = nil
		}
		current = append(current, fam.ids...)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	var confirmed []store.MoveUpdate
	var firstFactoryErr, firstRequestErr error

	for _, batchIDs := range batches {
		links, factoryErr := t.factory.PrepareNodeLinks(ctx, batchIDs, dest)
		if factoryErr != nil && firstFactoryErr == nil {
			firstFactoryErr = factoryErr
		}
		if len(links) == 0 {
			continue
		}

		params := api.TransferMultipleParameters{
			ParentLinkID:       dest.NodeID,
			Links:              moveLinks(links),
			NameSignatureEmail: t.factory.kit.Email,
		}
		if anonymous {
			email := t.factory.kit.Email
			params.SignatureEmail = &email
		}

		if err := t.transfer(ctx, dest.VolumeID, params); err != nil {
			if firstRequestErr == nil {
				firstRequestErr = err
			}
			continue
		}

		confirmed = append(confirmed, moveUpdates(links, t.factory.kit.Email)...)
	}

	if firstRequestErr != nil {
		return confirmed, firstRequestErr
	}
	return confirmed, firstFactoryErr
}
