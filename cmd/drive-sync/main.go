package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/config"
	"github.com/alexjbarnes/drive-sync/internal/crypto"
	"github.com/alexjbarnes/drive-sync/internal/events"
	"github.com/alexjbarnes/drive-sync/internal/logging"
	"github.com/alexjbarnes/drive-sync/internal/mover"
	"github.com/alexjbarnes/drive-sync/internal/refresher"
	"github.com/alexjbarnes/drive-sync/internal/resync"
	"github.com/alexjbarnes/drive-sync/internal/store"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

const usage = `usage: drive-sync [command]

commands:
  run                              sync daemon (default)
  resync                           force a full metadata resync
  move <parent-id> <node-id>...    move nodes to a new parent folder
  transfer <parent-id> <photo-id>...
                                   move photos (with burst children) to an album
  rename <node-id> <new-name>      rename a node in place
  trash <node-id>...               move nodes to trash
  delete-trashed <node-id>...      permanently delete trashed nodes
`

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(os.Stderr, usage)
		return
	}

	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogFile)
	logger.Info("drive-sync starting",
		slog.String("version", Version),
		slog.String("command", cmd),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "run":
		return a.runDaemon(ctx)
	case "resync":
		return a.coordinator.PerformFullResync(ctx, false)
	case "move":
		if len(args) < 2 {
			return fmt.Errorf("move needs a parent ID and at least one node ID")
		}
		return a.multiMover.Move(ctx, args[1:], args[0])
	case "transfer":
		if len(args) < 2 {
			return fmt.Errorf("transfer needs a parent ID and at least one photo ID")
		}
		return a.photoTransfer.Transfer(ctx, args[1:], args[0])
	case "rename":
		if len(args) != 2 {
			return fmt.Errorf("rename needs a node ID and a new name")
		}
		return a.nodeMover.Rename(ctx, args[0], args[1])
	case "trash":
		if len(args) < 1 {
			return fmt.Errorf("trash needs at least one node ID")
		}
		refs, err := a.resolveRefs(args)
		if err != nil {
			return err
		}
		return a.trasher.Trash(ctx, refs)
	case "delete-trashed":
		if len(args) < 1 {
			return fmt.Errorf("delete-trashed needs at least one node ID")
		}
		refs, err := a.resolveRefs(args)
		if err != nil {
			return err
		}
		return a.deleter.Delete(ctx, refs)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// app is the wired object graph shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metadata *store.Recoverable
	events   *store.Recoverable
	nodes    *store.NodeStore

	listener    *events.Listener
	coordinator *resync.Coordinator

	multiMover    *mover.MultipleNodeMover
	photoTransfer *mover.MultiplePhotoTransfer
	nodeMover     *mover.NodeMover
	trasher       *mover.NodeTrasher
	deleter       *mover.TrashedNodeDeleter
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	for _, dir := range []string{cfg.DataDir, cfg.AppGroupDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	metadata, err := store.OpenNodeStore(cfg.MetadataDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	eventsDB, err := store.OpenEventStore(cfg.EventDBPath())
	if err != nil {
		metadata.Close()
		return nil, fmt.Errorf("opening event database: %w", err)
	}

	client := api.NewClient(&http.Client{Timeout: 30 * time.Second}, cfg.APIHost, cfg.SessionToken)

	share, err := client.FetchRoot(ctx, cfg.ShareID)
	if err != nil {
		metadata.Close()
		eventsDB.Close()
		return nil, fmt.Errorf("fetching share root: %w", err)
	}

	kit, err := crypto.NewSignersKit(cfg.AddressEmail, cfg.AddressPassphrase)
	if err != nil {
		metadata.Close()
		eventsDB.Close()
		return nil, fmt.Errorf("deriving address key: %w", err)
	}

	nodes := store.NewNodeStore(metadata)
	cursor := store.NewEventStore(eventsDB)
	listener := events.NewListener(client, nodes, cursor, cfg.ShareID, share.VolumeID, logger)

	refr := refresher.NewService(client, cfg.ShareID, logger)
	recoveryNodes := store.NewRecoveryNodeStore(metadata)
	refresh := func(ctx context.Context, cancelled func() bool, onProgress func(int)) error {
		// Trashed items are listed too so the rebuilt replica keeps
		// their state.
		return refr.RefreshTree(ctx, recoveryNodes, true, cancelled, onProgress)
	}

	service := resync.NewService(
		metadata, eventsDB,
		refresh,
		func() { listener.Start(ctx) },
		listener.Pause,
		listener.ClearAndReinitialize,
		logger,
	)

	coordinator := resync.NewCoordinator(
		service,
		resync.NewSharedFlags(cfg.AppGroupDir),
		resync.NewFileSignalEnumerator(cfg.AppGroupDir),
		cfg.EnumerationTimeout,
		logger,
	)

	reader := mover.NewCryptoMaterialReader(nodes, kit)
	factory := mover.NewLinkFactory(reader, kit)

	return &app{
		cfg:           cfg,
		logger:        logger,
		metadata:      metadata,
		events:        eventsDB,
		nodes:         nodes,
		listener:      listener,
		coordinator:   coordinator,
		multiMover:    mover.NewMultipleNodeMover(nodes, reader, factory, client.MoveMultiple, logger),
		photoTransfer: mover.NewMultiplePhotoTransfer(nodes, reader, factory, client.TransferMultiple, logger),
		nodeMover:     mover.NewNodeMover(nodes, reader, factory, client),
		trasher:       mover.NewNodeTrasher(nodes, client, nil, logger),
		deleter:       mover.NewTrashedNodeDeleter(nodes, client, logger),
	}, nil
}

// runDaemon keeps the event stream alive, kicking off a resync first
// when leftovers show the previous run died mid-swap.
func (a *app) runDaemon(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.coordinator.PreviousRunWasInterrupted() {
		a.logger.Warn("previous resync was interrupted, resynchronizing before going live")
		g.Go(func() error {
			return a.coordinator.PerformFullResync(gctx, true)
		})
	} else {
		a.listener.Start(gctx)
	}

	<-gctx.Done()

	a.coordinator.Abort()
	a.listener.Pause()

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

func (a *app) resolveRefs(nodeIDs []string) ([]store.Ref, error) {
	refs := make([]store.Ref, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		node, err := a.nodes.GetNode(id)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, fmt.Errorf("unknown node %s", id)
		}
		refs = append(refs, store.Ref{VolumeID: node.VolumeID, NodeID: node.NodeID})
	}
	return refs, nil
}

func (a *app) close() {
	if err := a.events.Close(); err != nil {
		a.logger.Warn("closing event database", slog.String("error", err.Error()))
	}
	if err := a.metadata.Close(); err != nil {
		a.logger.Warn("closing metadata database", slog.String("error", err.Error()))
	}
}
