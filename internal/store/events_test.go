package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/drive-sync/internal/api"
)

func testEvents(t *testing.T) *EventStore {
	t.Helper()
	r, err := OpenEventStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return NewEventStore(r)
}

func TestCursor_EmptyByDefault(t *testing.T) {
	s := testEvents(t)

	cursor, err := s.Cursor("vol-1")
	require.NoError(t, err)
	assert.Equal(t, "", cursor)
}

func TestSetCursor_RoundTripPerVolume(t *testing.T) {
	s := testEvents(t)

	require.NoError(t, s.SetCursor("vol-1", "ev-10"))
	require.NoError(t, s.SetCursor("vol-2", "ev-99"))

	c1, err := s.Cursor("vol-1")
	require.NoError(t, err)
	assert.Equal(t, "ev-10", c1)

	c2, err := s.Cursor("vol-2")
	require.NoError(t, err)
	assert.Equal(t, "ev-99", c2)
}

func TestClear_DropsAllCursors(t *testing.T) {
	s := testEvents(t)
	require.NoError(t, s.SetCursor("vol-1", "ev-10"))

	require.NoError(t, s.Clear())

	cursor, err := s.Cursor("vol-1")
	require.NoError(t, err)
	assert.Equal(t, "", cursor)

	// The store is still writable after the bucket reset.
	require.NoError(t, s.SetCursor("vol-1", "ev-11"))
}

// --- NodeFromLink ---

func TestNodeFromLink(t *testing.T) {
	link := api.Link{
		LinkID:          "n1",
		ParentLinkID:    "root",
		VolumeID:        "vol-1",
		Name:            "enc-name",
		Hash:            "name-hash",
		NodeKey:         "aabb",
		NodeHashKey:     "ccdd",
		NodePassphrase:  "enc-pass",
		SignatureEmail:  "me@example.com",
		MainPhotoLinkID: "main-1",
		Type:            api.LinkTypeFolder,
		State:           api.LinkStateActive,
	}

	n := NodeFromLink("share-1", link)
	assert.Equal(t, "share-1", n.ShareID)
	assert.Equal(t, "n1", n.NodeID)
	assert.Equal(t, "root", n.ParentID)
	assert.True(t, n.IsFolder)
	assert.Equal(t, "ccdd", n.HashKey)
	assert.Equal(t, NodeActive, n.State)
}

func TestNodeFromLink_TrashedState(t *testing.T) {
	n := NodeFromLink("share-1", api.Link{LinkID: "n1", Type: api.LinkTypeFile, State: api.LinkStateTrashed})
	assert.False(t, n.IsFolder)
	assert.Equal(t, NodeDeleted, n.State)
}
