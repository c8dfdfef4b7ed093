package mover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/drive-sync/internal/api"
)

// fakeMoveClient records single-node move and rename requests.
type fakeMoveClient struct {
	moves   []api.MoveParameters
	renames []api.RenameParameters
	err     error
}

func (f *fakeMoveClient) Move(_ context.Context, _, _ string, params api.MoveParameters) error {
	f.moves = append(f.moves, params)
	return f.err
}

func (f *fakeMoveClient) Rename(_ context.Context, _, _ string, params api.RenameParameters) error {
	f.renames = append(f.renames, params)
	return f.err
}

func TestNodeMover_Move(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)

	client := &fakeMoveClient{}
	m := NewNodeMover(e.nodes, e.reader, e.factory, client)

	require.NoError(t, m.Move(context.Background(), "n1", "dst"))

	require.Len(t, client.moves, 1)
	assert.Equal(t, "dst", client.moves[0].ParentLinkID)
	assert.Nil(t, client.moves[0].NodePassphraseSignature)
	assert.Equal(t, e.kit.Email, client.moves[0].SignatureEmail)

	n := e.mustGet("n1")
	assert.Equal(t, "dst", n.ParentID)

	name, err := e.enc.Decrypt(n.Name, e.dstKey)
	require.NoError(t, err)
	assert.Equal(t, "file-n1.jpg", name)
}

func TestNodeMover_MoveAnonymousSendsSignature(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", true)

	client := &fakeMoveClient{}
	m := NewNodeMover(e.nodes, e.reader, e.factory, client)

	require.NoError(t, m.Move(context.Background(), "n1", "dst"))

	require.Len(t, client.moves, 1)
	require.NotNil(t, client.moves[0].NodePassphraseSignature)
	assert.Equal(t, e.kit.Email, client.moves[0].SignatureEmail)

	n := e.mustGet("n1")
	assert.Equal(t, e.kit.Email, n.SignatureEmail)
}

func TestNodeMover_MoveRemoteErrorLeavesReplicaUntouched(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)

	client := &fakeMoveClient{err: errors.New("rejected")}
	m := NewNodeMover(e.nodes, e.reader, e.factory, client)

	err := m.Move(context.Background(), "n1", "dst")
	require.Error(t, err)
	assert.Equal(t, "src", e.mustGet("n1").ParentID)
}

func TestNodeMover_Rename(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)
	before := e.mustGet("n1")

	client := &fakeMoveClient{}
	m := NewNodeMover(e.nodes, e.reader, e.factory, client)

	require.NoError(t, m.Rename(context.Background(), "n1", "renamed.jpg"))

	require.Len(t, client.renames, 1)
	assert.Equal(t, before.NameHash, client.renames[0].OriginalHash)
	assert.Equal(t, e.kit.Email, client.renames[0].NameSignatureEmail)

	n := e.mustGet("n1")
	assert.Equal(t, "src", n.ParentID)
	assert.Equal(t, before.NodePassphrase, n.NodePassphrase)

	// The new name stays under the current parent's key.
	name, err := e.enc.Decrypt(n.Name, e.srcKey)
	require.NoError(t, err)
	assert.Equal(t, "renamed.jpg", name)

	wantHash, err := e.enc.HMACName("renamed.jpg", e.srcHashKey)
	require.NoError(t, err)
	assert.Equal(t, wantHash, n.NameHash)
}

func TestNodeMover_RenameRejectsInvalidName(t *testing.T) {
	e := newTestEnv(t)
	e.addFile("n1", false)

	client := &fakeMoveClient{}
	m := NewNodeMover(e.nodes, e.reader, e.factory, client)

	err := m.Rename(context.Background(), "n1", "bad/name")
	require.Error(t, err)
	assert.Empty(t, client.renames)
}
