package store

import (
	"github.com/alexjbarnes/drive-sync/internal/api"
)

// NodeFromLink converts a remote listing entry into a replica node.
func NodeFromLink(shareID string, l api.Link) Node {
	state := NodeActive
	if l.State == api.LinkStateTrashed {
		state = NodeDeleted
	}

	return Node{
		VolumeID:                l.VolumeID,
		ShareID:                 shareID,
		NodeID:                  l.LinkID,
		ParentID:                l.ParentLinkID,
		Name:                    l.Name,
		NameHash:                l.Hash,
		NodePassphrase:          l.NodePassphrase,
		NodePassphraseSignature: l.NodePassphraseSignature,
		SignatureEmail:          l.SignatureEmail,
		NameSignatureEmail:      l.NameSignatureEmail,
		NodeKey:                 l.NodeKey,
		HashKey:                 l.NodeHashKey,
		ContentHash:             l.ContentHash,
		MainPhotoID:             l.MainPhotoLinkID,
		IsFolder:                l.Type == api.LinkTypeFolder,
		State:                   state,
	}
}
