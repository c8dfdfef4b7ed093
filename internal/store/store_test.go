package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes(t *testing.T) *NodeStore {
	t.Helper()
	r, err := OpenNodeStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return NewNodeStore(r)
}

func node(id, parentID string) Node {
	return Node{
		VolumeID: "vol-1",
		ShareID:  "share-1",
		NodeID:   id,
		ParentID: parentID,
		Name:     "enc-name-" + id,
		NameHash: "hash-" + id,
		State:    NodeActive,
	}
}

// --- Put / Get / Delete ---

func TestPutNode_RoundTrip(t *testing.T) {
	s := testNodes(t)

	n := node("n1", "root")
	n.SignatureEmail = "me@example.com"
	require.NoError(t, s.PutNode(n))

	got, err := s.GetNode("n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, n, *got)
}

func TestGetNode_MissingReturnsNil(t *testing.T) {
	s := testNodes(t)

	got, err := s.GetNode("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteNodes_RemovesOnlyGiven(t *testing.T) {
	s := testNodes(t)
	require.NoError(t, s.PutNodes([]Node{node("n1", "root"), node("n2", "root")}))

	require.NoError(t, s.DeleteNodes([]string{"n1"}))

	got, err := s.GetNode("n1")
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// --- IsAnonymous ---

func TestIsAnonymous(t *testing.T) {
	assert.True(t, Node{}.IsAnonymous())
	assert.False(t, Node{SignatureEmail: "me@example.com"}.IsAnonymous())
}

// --- BurstChildren ---

func TestBurstChildren(t *testing.T) {
	s := testNodes(t)

	main := node("main", "album")
	child1 := node("c1", "album")
	child1.MainPhotoID = "main"
	child2 := node("c2", "album")
	child2.MainPhotoID = "main"
	other := node("other", "album")

	require.NoError(t, s.PutNodes([]Node{main, child1, child2, other}))

	children, err := s.BurstChildren("main")
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, c := range children {
		assert.Equal(t, "main", c.MainPhotoID)
	}
}

// --- MarkDeleted / MarkToBeDeleted ---

func TestMarkDeleted_SkipsMissing(t *testing.T) {
	s := testNodes(t)
	require.NoError(t, s.PutNode(node("n1", "root")))

	require.NoError(t, s.MarkDeleted([]string{"n1", "ghost"}))

	got, err := s.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, NodeDeleted, got.State)
}

func TestMarkToBeDeleted_Recursive(t *testing.T) {
	s := testNodes(t)

	folder := node("folder", "root")
	folder.IsFolder = true
	sub := node("sub", "folder")
	sub.IsFolder = true
	leaf := node("leaf", "sub")
	sibling := node("sibling", "root")

	require.NoError(t, s.PutNodes([]Node{folder, sub, leaf, sibling}))
	require.NoError(t, s.MarkToBeDeleted([]string{"folder"}))

	for _, id := range []string{"folder", "sub", "leaf"} {
		got, err := s.GetNode(id)
		require.NoError(t, err)
		assert.Equal(t, NodeToBeDeleted, got.State, id)
	}

	got, err := s.GetNode("sibling")
	require.NoError(t, err)
	assert.Equal(t, NodeActive, got.State)
}

// --- ApplyMoves ---

func TestApplyMoves_SingleTransactionRollsBackOnMissingNode(t *testing.T) {
	s := testNodes(t)
	require.NoError(t, s.PutNode(node("n1", "src")))

	err := s.ApplyMoves("dst", []MoveUpdate{
		{NodeID: "n1", Name: "new", NameHash: "newhash", NodePassphrase: "newpass"},
		{NodeID: "ghost", Name: "x", NameHash: "y", NodePassphrase: "z"},
	})
	require.Error(t, err)

	// The transaction must have rolled back n1 along with the failure.
	got, err := s.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "src", got.ParentID)
	assert.Equal(t, "enc-name-n1", got.Name)
}

func TestApplyMoves_NormalLeavesSignaturesIntact(t *testing.T) {
	s := testNodes(t)

	n := node("n1", "src")
	n.SignatureEmail = "owner@example.com"
	n.NameSignatureEmail = "owner@example.com"
	n.NodePassphraseSignature = "orig-sig"
	require.NoError(t, s.PutNode(n))

	require.NoError(t, s.ApplyMoves("dst", []MoveUpdate{
		{NodeID: "n1", Name: "new", NameHash: "newhash", NodePassphrase: "newpass"},
	}))

	got, err := s.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "dst", got.ParentID)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, "owner@example.com", got.SignatureEmail)
	assert.Equal(t, "owner@example.com", got.NameSignatureEmail)
	assert.Equal(t, "orig-sig", got.NodePassphraseSignature)
}

func TestApplyMoves_AnonymousRewritesSignatures(t *testing.T) {
	s := testNodes(t)
	require.NoError(t, s.PutNode(node("n1", "src")))

	require.NoError(t, s.ApplyMoves("dst", []MoveUpdate{{
		NodeID:              "n1",
		Name:                "new",
		NameHash:            "newhash",
		NodePassphrase:      "newpass",
		Anonymous:           true,
		PassphraseSignature: "fresh-sig",
		SignatureEmail:      "me@example.com",
	}}))

	got, err := s.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-sig", got.NodePassphraseSignature)
	assert.Equal(t, "me@example.com", got.SignatureEmail)
	assert.Equal(t, "me@example.com", got.NameSignatureEmail)
}
