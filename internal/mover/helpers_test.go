package mover

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/drive-sync/internal/crypto"
	"github.com/alexjbarnes/drive-sync/internal/store"
)

// testEnv wires a real node store with real crypto: a source folder, a
// destination folder, and helpers to seed encrypted file nodes.
type testEnv struct {
	t *testing.T

	nodes   *store.NodeStore
	reader  *CryptoMaterialReader
	factory *LinkFactory
	kit     crypto.SignersKit
	enc     crypto.Encryptor

	srcKey, srcHashKey []byte
	dstKey, dstHashKey []byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rec, err := store.OpenNodeStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	kit, err := crypto.NewSignersKit("signer@example.com", "address-pass")
	require.NoError(t, err)

	e := &testEnv{
		t:          t,
		nodes:      store.NewNodeStore(rec),
		kit:        kit,
		srcKey:     testEnvKey(t, "src"),
		srcHashKey: testEnvKey(t, "src-hash"),
		dstKey:     testEnvKey(t, "dst"),
		dstHashKey: testEnvKey(t, "dst-hash"),
	}
	e.reader = NewCryptoMaterialReader(e.nodes, kit)
	e.factory = NewLinkFactory(e.reader, kit)

	require.NoError(t, e.nodes.PutNodes([]store.Node{
		e.folder("src", e.srcKey, e.srcHashKey),
		e.folder("dst", e.dstKey, e.dstHashKey),
	}))

	return e
}

func testEnvKey(t *testing.T, label string) []byte {
	t.Helper()
	key, err := crypto.DeriveKey("pw-"+label, "salt")
	require.NoError(t, err)
	return key
}

func (e *testEnv) folder(id string, key, hashKey []byte) store.Node {
	return store.Node{
		VolumeID: "vol-1",
		ShareID:  "share-1",
		NodeID:   id,
		Name:     "enc-" + id,
		NodeKey:  hex.EncodeToString(key),
		HashKey:  hex.EncodeToString(hashKey),
		IsFolder: true,
		State:    store.NodeActive,
	}
}

// addFile seeds one file under the source folder, encrypted for real so
// the reader and factory can decrypt it.
func (e *testEnv) addFile(id string, anonymous bool) store.Node {
	e.t.Helper()
	return e.addFileNamed(id, fmt.Sprintf("file-%s.jpg", id), anonymous)
}

func (e *testEnv) addFileNamed(id, clearName string, anonymous bool) store.Node {
	e.t.Helper()
	name, err := e.enc.EncryptName(clearName, e.srcKey)
	require.NoError(e.t, err)

	passphrase, err := e.enc.EncryptSecret("pass-"+id, e.srcKey)
	require.NoError(e.t, err)

	hash, err := e.enc.HMACName(clearName, e.srcHashKey)
	require.NoError(e.t, err)

	n := store.Node{
		VolumeID:       "vol-1",
		ShareID:        "share-1",
		NodeID:         id,
		ParentID:       "src",
		Name:           name,
		NameHash:       hash,
		NodePassphrase: passphrase,
		State:          store.NodeActive,
	}
	if !anonymous {
		n.SignatureEmail = "owner@example.com"
		n.NameSignatureEmail = "owner@example.com"
		n.NodePassphraseSignature = "orig-sig"
	}

	require.NoError(e.t, e.nodes.PutNode(n))
	return n
}

// addCrossVolumeFile seeds a readable file on a different volume, with
// its own parent folder so material reads still succeed.
func (e *testEnv) addCrossVolumeFile(id string) store.Node {
	e.t.Helper()

	parentID := "src-" + id
	parent := e.folder(parentID, e.srcKey, e.srcHashKey)
	parent.VolumeID = "vol-other"
	require.NoError(e.t, e.nodes.PutNode(parent))

	name, err := e.enc.EncryptName(fmt.Sprintf("file-%s.jpg", id), e.srcKey)
	require.NoError(e.t, err)
	passphrase, err := e.enc.EncryptSecret("pass-"+id, e.srcKey)
	require.NoError(e.t, err)

	n := store.Node{
		VolumeID:       "vol-other",
		ShareID:        "share-1",
		NodeID:         id,
		ParentID:       parentID,
		Name:           name,
		NodePassphrase: passphrase,
		State:          store.NodeActive,
	}
	require.NoError(e.t, e.nodes.PutNode(n))
	return n
}

func (e *testEnv) mustGet(id string) store.Node {
	e.t.Helper()
	n, err := e.nodes.GetNode(id)
	require.NoError(e.t, err)
	require.NotNil(e.t, n)
	return *n
}

func (e *testEnv) destMaterial() NodeParentCryptoMaterial {
	e.t.Helper()
	dest, err := e.reader.ReadDestination("dst")
	require.NoError(e.t, err)
	return dest
}
