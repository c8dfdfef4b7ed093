// Package mover implements the remote mutation pipeline: batched
// multi-node moves, photo transfers, single-node move and rename, and
// trash and permanent deletion. Every mutation follows the same shape:
// read crypto material from the replica, compute the new encrypted
// payloads, call the remote, and only then write the confirmed result
// back in a single transaction.
package mover

import (
	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/crypto"
)

// NodeParentCryptoMaterial is the decrypted key material of a
// destination folder. HashKey is set when name hashing is required.
type NodeParentCryptoMaterial struct {
	VolumeID string
	NodeID   string
	Key      []byte
	HashKey  []byte
}

// NodeCryptoMaterial is everything needed to recompute one node's
// encrypted payloads for a new parent, read out of the replica before
// any remote call is made.
type NodeCryptoMaterial struct {
	VolumeID string
	ShareID  string
	NodeID   string

	IsAnonymous    bool
	SignatureEmail string

	OldEncryptedName       string
	ClearName              string
	OldEncryptedPassphrase string
	DecryptedPassphrase    string
	OldNameHash            string
	OldParentKey           []byte

	Kit crypto.SignersKit

	// ContentDigest is the decrypted photo digest when known;
	// PrevContentHash is the hash previously registered remotely.
	ContentDigest   string
	PrevContentHash string
}

// LinkInfo is one prepared move payload plus the signing mode it was
// built under.
type LinkInfo struct {
	Link           api.MoveLink
	IsAnonymous    bool
	SignatureEmail string
}
