// Package refresher rebuilds the node replica from the remote listing.
// During a resync it walks the whole share tree and writes every node
// into the recovery database, so the result can replace the live
// replica atomically once the walk completes.
package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alexjbarnes/drive-sync/internal/api"
	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"github.com/alexjbarnes/drive-sync/internal/store"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// ShareLister is the subset of the API client the refresher needs.
type ShareLister interface {
	FetchRoot(ctx context.Context, shareID string) (api.Share, error)
	ListFolderChildren(ctx context.Context, shareID, folderID string, page int, showAll bool) ([]api.Link, bool, error)
}

// Service walks the remote tree breadth first and mirrors it into a
// node store.
type Service struct {
	client  ShareLister
	shareID string
	workers int
	logger  *slog.Logger
}

func NewService(client ShareLister, shareID string, logger *slog.Logger) *Service {
	return &Service{
		client:  client,
		shareID: shareID,
		workers: defaultWorkers,
		logger:  logger,
	}
}

// RefreshTree enumerates every node under the share root into dest.
// With includeDeleted set, trashed items are listed too so the rebuilt
// replica carries their state. cancelled is consulted before each
// listing request; a refresh abandoned mid-walk leaves dest partially
// filled, which is fine because dest is always a throwaway recovery
// database.
//
// onProgress, when non-nil, receives the cumulative node count after
// each page of results.
func (s *Service) RefreshTree(ctx context.Context, dest *store.NodeStore, includeDeleted bool, cancelled func() bool, onProgress func(total int)) error {
	root, err := s.client.FetchRoot(ctx, s.shareID)
	if err != nil {
		return fmt.Errorf("fetching share root: %w", err)
	}
	if root.RootLinkID == "" {
		return apperrors.ErrNoRootFolder
	}

	var total atomic.Int64
	report := func(n int) {
		if onProgress != nil && n > 0 {
			onProgress(int(total.Add(int64(n))))
		}
	}

	frontier := []string{root.RootLinkID}

	for len(frontier) > 0 {
		var (
			mu   sync.Mutex
			next []string
		)

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.workers)

		for _, folderID := range frontier {
			group.Go(func() error {
				folders, err := s.walkFolder(groupCtx, dest, folderID, includeDeleted, cancelled, report)
				if err != nil {
					return err
				}
				mu.Lock()
				next = append(next, folders...)
				mu.Unlock()
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			return err
		}

		frontier = next
	}

	s.logger.Info("tree refresh complete",
		slog.String("share", s.shareID),
		slog.Int64("nodes", total.Load()),
	)

	return nil
}

// walkFolder lists all pages of one folder, persists the children, and
// returns the IDs of child folders for the next BFS level.
func (s *Service) walkFolder(ctx context.Context, dest *store.NodeStore, folderID string, includeDeleted bool, cancelled func() bool, report func(int)) ([]string, error) {
	var folders []string

	for page := 0; ; page++ {
		if cancelled != nil && cancelled() {
			return nil, apperrors.ErrCancelled
		}

		links, more, err := s.client.ListFolderChildren(ctx, s.shareID, folderID, page, includeDeleted)
		if err != nil {
			return nil, fmt.Errorf("listing folder %s page %d: %w", folderID, page, err)
		}

		nodes := make([]store.Node, 0, len(links))
		for _, link := range links {
			node := store.NodeFromLink(s.shareID, link)
			nodes = append(nodes, node)
			if node.IsFolder {
				folders = append(folders, node.NodeID)
			}
		}

		if err := dest.PutNodes(nodes); err != nil {
			return nil, fmt.Errorf("storing folder %s children: %w", folderID, err)
		}
		report(len(nodes))

		if !more {
			return folders, nil
		}
	}
}
