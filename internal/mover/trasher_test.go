package mover

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/store"
)

// fakeTrashClient replies with configured partial failures per call.
type fakeTrashClient struct {
	mu       sync.Mutex
	calls    [][]string
	failures []api.PartialFailure
	err      error
}

func (f *fakeTrashClient) Trash(_ context.Context, _ string, linkIDs []string) ([]api.PartialFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, linkIDs)
	if f.err != nil {
		return nil, f.err
	}
	return f.failures, nil
}

func refsFor(ids ...string) []store.Ref {
	refs := make([]store.Ref, len(ids))
	for i, id := range ids {
		refs[i] = store.Ref{VolumeID: "vol-1", NodeID: id}
	}
	return refs
}

func TestTrash_MarksSuccessesDeleted(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)
	e.addFile("n2", false)

	client := &fakeTrashClient{}
	tr := NewNodeTrasher(e.nodes, client, nil, discardLogger())

	require.NoError(t, tr.Trash(context.Background(), refsFor("n1", "n2")))

	assert.Equal(t, store.NodeDeleted, e.mustGet("n1").State)
	assert.Equal(t, store.NodeDeleted, e.mustGet("n2").State)
}

func TestTrash_PartialFailurePartition(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)
	e.addFile("n2", false)

	client := &fakeTrashClient{failures: []api.PartialFailure{
		{ID: "n2", Code: 2001, Message: "locked"},
	}}
	tr := NewNodeTrasher(e.nodes, client, nil, discardLogger())

	err := tr.Trash(context.Background(), refsFor("n1", "n2"))
	require.Error(t, err)
	assert.Equal(t, 2001, api.ErrorCode(err))

	// Requested minus failed is the success set.
	assert.Equal(t, store.NodeDeleted, e.mustGet("n1").State)
	assert.Equal(t, store.NodeActive, e.mustGet("n2").State)
}

func TestTrash_AlreadyDeletedCountsAsSuccessAndRemovesNode(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)
	e.addFile("n2", false)

	client := &fakeTrashClient{failures: []api.PartialFailure{
		{ID: "n2", Code: api.CodeItemOrParentDeleted, Message: "gone"},
	}}
	tr := NewNodeTrasher(e.nodes, client, nil, discardLogger())

	require.NoError(t, tr.Trash(context.Background(), refsFor("n1", "n2")))

	assert.Equal(t, store.NodeDeleted, e.mustGet("n1").State)

	// n2 is gone server-side, so the replica drops it entirely.
	gone, err := e.nodes.GetNode("n2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTrash_CallsCancelDownloadsHook(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)

	var cancelled []string
	client := &fakeTrashClient{}
	tr := NewNodeTrasher(e.nodes, client, func(ids []string) { cancelled = append(cancelled, ids...) }, discardLogger())

	require.NoError(t, tr.Trash(context.Background(), refsFor("n1")))
	assert.Equal(t, []string{"n1"}, cancelled)
}

func TestTrash_RequestErrorWinsOverResidualFailure(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)

	client := &fakeTrashClient{err: errors.New("network down")}
	tr := NewNodeTrasher(e.nodes, client, nil, discardLogger())

	err := tr.Trash(context.Background(), refsFor("n1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")

	assert.Equal(t, store.NodeActive, e.mustGet("n1").State)
}

func TestTrash_ChunksAt150PerVolume(t *testing.T) {
	e := newTestEnv(t)
	ids := seedFiles(e, 200, false)

	client := &fakeTrashClient{}
	tr := NewNodeTrasher(e.nodes, client, nil, discardLogger())

	require.NoError(t, tr.Trash(context.Background(), refsFor(ids...)))
	require.Len(t, client.calls, 2)
	assert.Len(t, client.calls[0], 150)
	assert.Len(t, client.calls[1], 50)
}
