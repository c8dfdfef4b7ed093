// Package events maintains the live remote-change stream: a websocket
// subscription that applies server-side node changes to the local
// replica as they happen. The resync engine pauses this listener before
// touching the stores and reinitializes it once the swap is committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/store"
	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	pingAfter        = 10 * time.Second
	disconnectAfter  = 120 * time.Second
	heartbeatCheckAt = 20 * time.Second

	reconnectMin = 1 * time.Second
	reconnectMax = 60 * time.Second
)

// Client is the subset of the API client the listener needs.
type Client interface {
	EventsURL(volumeID, sinceEventID string) string
	Token() string
	LatestEventID(ctx context.Context, volumeID string) (string, error)
}

// inboundMsg wraps a message read from the websocket by the reader
// goroutine.
type inboundMsg struct {
	data []byte
	err  error
}

// Listener subscribes to a volume's change events and applies them to
// the node replica, advancing the event cursor after each applied event.
//
// Architecture: a reader goroutine feeds inboundCh with raw frames; a
// single loop goroutine processes them and owns all writes, so no write
// mutex is needed.
type Listener struct {
	client   Client
	nodes    *store.NodeStore
	cursor   *store.EventStore
	shareID  string
	volumeID string
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMessage time.Time
	lastMsgMu   sync.Mutex
}

// NewListener creates a listener for one volume.
func NewListener(client Client, nodes *store.NodeStore, cursor *store.EventStore, shareID, volumeID string, logger *slog.Logger) *Listener {
	return &Listener{
		client:   client,
		nodes:    nodes,
		cursor:   cursor,
		shareID:  shareID,
		volumeID: volumeID,
		logger:   logger,
	}
}

// Start launches the listening loop if it is not already running.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		l.run(runCtx)
	}()
}

// Pause stops the listening loop and waits for it to exit. While paused,
// nothing mutates the replica concurrently with a resync. Idempotent.
func (l *Listener) Pause() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the listening loop is active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// ClearAndReinitialize drops the stale cursors and re-anchors the stream
// at the server's latest event. Must be called while paused; the cursor
// store may have just been swapped underneath us, which is fine because
// the event store binding follows the live database.
func (l *Listener) ClearAndReinitialize(ctx context.Context) error {
	if l.Running() {
		return fmt.Errorf("cannot reinitialize events while the listener is running")
	}

	if err := l.cursor.Clear(); err != nil {
		return fmt.Errorf("clearing event cursors: %w", err)
	}

	latest, err := l.client.LatestEventID(ctx, l.volumeID)
	if err != nil {
		return fmt.Errorf("anchoring event stream: %w", err)
	}

	if err := l.cursor.SetCursor(l.volumeID, latest); err != nil {
		return fmt.Errorf("persisting event cursor: %w", err)
	}

	return nil
}

// run is the reconnect loop: listen until the connection drops, then
// redial with jittered exponential backoff. Returns when ctx is
// cancelled.
func (l *Listener) run(ctx context.Context) {
	backoff := reconnectMin

	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}

		l.logger.Warn("event stream lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		jitter := time.Duration(rand.Int64N(int64(backoff) / 2))
		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff = min(backoff*2, reconnectMax)
	}
}

// listen dials the stream and processes frames until an error occurs.
func (l *Listener) listen(ctx context.Context) error {
	since, err := l.cursor.Cursor(l.volumeID)
	if err != nil {
		return fmt.Errorf("reading event cursor: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, l.client.EventsURL(l.volumeID, since), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + l.client.Token()},
		},
	})
	if err != nil {
		return fmt.Errorf("dialing event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	l.touchLastMessage()

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	inboundCh := make(chan inboundMsg, 64)
	go func() {
		for {
			_, data, err := conn.Read(connCtx)
			select {
			case inboundCh <- inboundMsg{data: data, err: err}:
			case <-connCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatCheckAt)
	defer ticker.Stop()

	for {
		select {
		case msg := <-inboundCh:
			if msg.err != nil {
				return fmt.Errorf("reading event frame: %w", msg.err)
			}
			l.touchLastMessage()

			if err := l.handleFrame(msg.data); err != nil {
				l.logger.Warn("applying event", slog.String("error", err.Error()))
			}

		case <-ticker.C:
			l.lastMsgMu.Lock()
			elapsed := time.Since(l.lastMessage)
			l.lastMsgMu.Unlock()

			if elapsed > disconnectAfter {
				conn.Close(websocket.StatusGoingAway, "timeout")
				return fmt.Errorf("heartbeat timeout")
			}

			if elapsed > pingAfter {
				if err := conn.Write(ctx, websocket.MessageText, []byte(`{"op":"ping"}`)); err != nil {
					return fmt.Errorf("sending ping: %w", err)
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleFrame routes one inbound text frame.
func (l *Listener) handleFrame(data []byte) error {
	op := gjson.GetBytes(data, "op").Str
	if op == "pong" {
		return nil
	}

	var event api.Event
	if err := json.Unmarshal(data, &event); err != nil {
		l.logger.Debug("unparseable event frame", slog.Int("bytes", len(data)))
		return nil
	}
	if event.EventID == "" {
		return nil
	}

	if err := l.applyEvent(event); err != nil {
		return err
	}

	if err := l.cursor.SetCursor(l.volumeID, event.EventID); err != nil {
		return fmt.Errorf("advancing event cursor: %w", err)
	}

	return nil
}

// applyEvent mutates the replica for one change event.
func (l *Listener) applyEvent(event api.Event) error {
	switch event.Type {
	case api.EventTypeCreate, api.EventTypeUpdate:
		node := store.NodeFromLink(l.shareID, event.Link)
		if err := l.nodes.PutNode(node); err != nil {
			return fmt.Errorf("upserting node %s: %w", event.Link.LinkID, err)
		}

	case api.EventTypeTrash:
		if err := l.nodes.MarkDeleted([]string{event.Link.LinkID}); err != nil {
			return fmt.Errorf("trashing node %s: %w", event.Link.LinkID, err)
		}

	case api.EventTypeDelete:
		if err := l.nodes.DeleteNode(event.Link.LinkID); err != nil {
			return fmt.Errorf("deleting node %s: %w", event.Link.LinkID, err)
		}

	default:
		l.logger.Debug("unknown event type", slog.Int("type", event.Type))
	}

	return nil
}

func (l *Listener) touchLastMessage() {
	l.lastMsgMu.Lock()
	l.lastMessage = time.Now()
	l.lastMsgMu.Unlock()
}
