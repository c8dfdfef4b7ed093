package store

// NodeState is the replica lifecycle state of a node. Deletion is logical
// first so in-flight downloads can be cancelled before physical removal.
type NodeState string

const (
	NodeActive      NodeState = "active"
	NodeDeleted     NodeState = "deleted"
	NodeToBeDeleted NodeState = "toBeDeleted"
)

// Node is one file or folder entry in the local replica of the remote
// tree. Name and NodePassphrase are encrypted at rest; empty
// SignatureEmail means anonymous cryptographic provenance.
type Node struct {
	VolumeID string `json:"volumeId"`
	ShareID  string `json:"shareId"`
	NodeID   string `json:"nodeId"`
	ParentID string `json:"parentId"`

	Name                    string `json:"name"`
	NameHash                string `json:"nameHash"`
	NodePassphrase          string `json:"nodePassphrase"`
	NodePassphraseSignature string `json:"nodePassphraseSignature,omitempty"`
	SignatureEmail          string `json:"signatureEmail,omitempty"`
	NameSignatureEmail      string `json:"nameSignatureEmail,omitempty"`

	// NodeKey and HashKey hold the node's decrypted key material,
	// hex-encoded. HashKey is set for folders only.
	NodeKey string `json:"nodeKey"`
	HashKey string `json:"hashKey,omitempty"`

	// ContentDigest is the decrypted content digest when known (photos);
	// ContentHash is the HMAC previously registered with the server.
	ContentDigest string `json:"contentDigest,omitempty"`
	ContentHash   string `json:"contentHash,omitempty"`

	// MainPhotoID links a burst/variant photo to its main photo.
	MainPhotoID string `json:"mainPhotoId,omitempty"`

	IsFolder bool      `json:"isFolder"`
	State    NodeState `json:"state"`
}

// IsAnonymous reports whether the node has no signer identity. Anonymous
// nodes get their keys re-derived from scratch on move.
func (n Node) IsAnonymous() bool {
	return n.SignatureEmail == ""
}

// Ref identifies a node within its volume.
type Ref struct {
	VolumeID string
	NodeID   string
}

// MoveUpdate is the confirmed result of a remote move for one node,
// applied to the replica only after the remote accepted it.
type MoveUpdate struct {
	NodeID         string
	Name           string
	NameHash       string
	NodePassphrase string

	// Anonymous-provenance moves additionally rewrite the signature
	// fields; normal moves must leave them untouched.
	Anonymous           bool
	PassphraseSignature string
	SignatureEmail      string
}
