package mover

import (
	"encoding/hex"
	"fmt"

	"github.com/alexjbarnes/drive-sync/internal/crypto"
	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"github.com/alexjbarnes/drive-sync/internal/store"
)

// CryptoMaterialReader loads and decrypts the per-node material a
// mutation needs. All reads happen before the remote call so a failed
// request leaves the replica untouched.
type CryptoMaterialReader struct {
	nodes *store.NodeStore
	enc   crypto.Encryptor
	kit   crypto.SignersKit
}

func NewCryptoMaterialReader(nodes *store.NodeStore, kit crypto.SignersKit) *CryptoMaterialReader {
	return &CryptoMaterialReader{nodes: nodes, kit: kit}
}

// ReadDestination loads the key material of a destination folder.
// The folder must carry a hash key so new name hashes can be computed.
func (r *CryptoMaterialReader) ReadDestination(folderID string) (NodeParentCryptoMaterial, error) {
	folder, err := r.nodes.GetNode(folderID)
	if err != nil {
		return NodeParentCryptoMaterial{}, fmt.Errorf("loading destination %s: %w", folderID, err)
	}
	if folder == nil {
		return NodeParentCryptoMaterial{}, fmt.Errorf("destination %s: %w", folderID, apperrors.ErrNodeNotFound)
	}
	if !folder.IsFolder || folder.HashKey == "" {
		return NodeParentCryptoMaterial{}, fmt.Errorf("destination %s has no hash key: %w", folderID, apperrors.ErrInvalidState)
	}

	key, err := hex.DecodeString(folder.NodeKey)
	if err != nil {
		return NodeParentCryptoMaterial{}, fmt.Errorf("decoding destination key: %w", err)
	}
	hashKey, err := hex.DecodeString(folder.HashKey)
	if err != nil {
		return NodeParentCryptoMaterial{}, fmt.Errorf("decoding destination hash key: %w", err)
	}

	return NodeParentCryptoMaterial{
		VolumeID: folder.VolumeID,
		NodeID:   folder.NodeID,
		Key:      key,
		HashKey:  hashKey,
	}, nil
}

// ReadNode loads one node's material, decrypting its name and
// passphrase under the current parent's key.
func (r *CryptoMaterialReader) ReadNode(nodeID string) (NodeCryptoMaterial, error) {
	node, err := r.nodes.GetNode(nodeID)
	if err != nil {
		return NodeCryptoMaterial{}, fmt.Errorf("loading node %s: %w", nodeID, err)
	}
	if node == nil {
		return NodeCryptoMaterial{}, fmt.Errorf("node %s: %w", nodeID, apperrors.ErrNodeNotFound)
	}
	if node.ParentID == "" {
		return NodeCryptoMaterial{}, fmt.Errorf("node %s has no parent: %w", nodeID, apperrors.ErrInvalidState)
	}

	parent, err := r.nodes.GetNode(node.ParentID)
	if err != nil {
		return NodeCryptoMaterial{}, fmt.Errorf("loading parent of %s: %w", nodeID, err)
	}
	if parent == nil {
		return NodeCryptoMaterial{}, fmt.Errorf("parent of %s missing: %w", nodeID, apperrors.ErrInvalidState)
	}

	parentKey, err := hex.DecodeString(parent.NodeKey)
	if err != nil {
		return NodeCryptoMaterial{}, fmt.Errorf("decoding parent key of %s: %w", nodeID, err)
	}

	clearName, err := r.enc.Decrypt(node.Name, parentKey)
	if err != nil {
		return NodeCryptoMaterial{}, fmt.Errorf("decrypting name of %s: %w", nodeID, apperrors.ErrInvalidState)
	}

	passphrase, err := r.enc.Decrypt(node.NodePassphrase, parentKey)
	if err != nil {
		return NodeCryptoMaterial{}, fmt.Errorf("decrypting passphrase of %s: %w", nodeID, apperrors.ErrInvalidState)
	}

	return NodeCryptoMaterial{
		VolumeID:               node.VolumeID,
		ShareID:                node.ShareID,
		NodeID:                 node.NodeID,
		IsAnonymous:            node.IsAnonymous(),
		SignatureEmail:         node.SignatureEmail,
		OldEncryptedName:       node.Name,
		ClearName:              clearName,
		OldEncryptedPassphrase: node.NodePassphrase,
		DecryptedPassphrase:    passphrase,
		OldNameHash:            node.NameHash,
		OldParentKey:           parentKey,
		Kit:                    r.kit,
		ContentDigest:          node.ContentDigest,
		PrevContentHash:        node.ContentHash,
	}, nil
}
