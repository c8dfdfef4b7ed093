package api

// Share describes the root attachment point of a volume.
type Share struct {
	ShareID      string `json:"ShareID"`
	VolumeID     string `json:"VolumeID"`
	RootLinkID   string `json:"LinkID"`
	CreatorEmail string `json:"Creator"`
}

// Link is one remote node entry as returned by folder listings.
type Link struct {
	LinkID                  string `json:"LinkID"`
	ParentLinkID            string `json:"ParentLinkID"`
	VolumeID                string `json:"VolumeID"`
	Name                    string `json:"Name"`
	Hash                    string `json:"Hash"`
	NodeKey                 string `json:"NodeKey"`
	NodeHashKey             string `json:"NodeHashKey,omitempty"`
	NodePassphrase          string `json:"NodePassphrase"`
	NodePassphraseSignature string `json:"NodePassphraseSignature,omitempty"`
	SignatureEmail          string `json:"SignatureEmail,omitempty"`
	NameSignatureEmail      string `json:"NameSignatureEmail,omitempty"`
	ContentHash             string `json:"ContentHash,omitempty"`
	MainPhotoLinkID         string `json:"MainPhotoLinkID,omitempty"`
	Type                    int    `json:"Type"`
	State                   int    `json:"State"`
}

// Link types.
const (
	LinkTypeFolder = 1
	LinkTypeFile   = 2
)

// Link states.
const (
	LinkStateActive  = 1
	LinkStateTrashed = 2
)

// MoveLink is the per-node payload of a move-multiple or transfer-multiple
// request. OriginalHash is the name hash before the move; ContentHash is
// photo-specific; NodePassphraseSignature is required when moving an
// anonymous link and must be signed by the request's SignatureEmail.
type MoveLink struct {
	LinkID                  string  `json:"LinkID"`
	Name                    string  `json:"Name"`
	NodePassphrase          string  `json:"NodePassphrase"`
	Hash                    string  `json:"Hash"`
	OriginalHash            string  `json:"OriginalHash"`
	ContentHash             *string `json:"ContentHash"`
	NodePassphraseSignature *string `json:"NodePassphraseSignature"`
}

// MoveMultipleParameters is the body of PUT /volumes/{id}/links/move-multiple.
type MoveMultipleParameters struct {
	ParentLinkID       string     `json:"ParentLinkID"`
	Links              []MoveLink `json:"Links"`
	NameSignatureEmail string     `json:"NameSignatureEmail"`
	SignatureEmail     string     `json:"SignatureEmail"`
}

// TransferMultipleParameters is the body of
// PUT /photos/volumes/{id}/links/transfer-multiple. SignatureEmail is set
// only for anonymous links; the endpoint requires a uniform signing mode
// per request.
type TransferMultipleParameters struct {
	ParentLinkID       string     `json:"ParentLinkID"`
	Links              []MoveLink `json:"Links"`
	NameSignatureEmail string     `json:"NameSignatureEmail"`
	SignatureEmail     *string    `json:"SignatureEmail"`
}

// MoveParameters is the body of the single-node move endpoint.
type MoveParameters struct {
	ParentLinkID            string  `json:"ParentLinkID"`
	Name                    string  `json:"Name"`
	NodePassphrase          string  `json:"NodePassphrase"`
	Hash                    string  `json:"Hash"`
	OriginalHash            string  `json:"OriginalHash"`
	NodePassphraseSignature *string `json:"NodePassphraseSignature"`
	SignatureEmail          string  `json:"SignatureEmail"`
}

// RenameParameters is the body of the single-node rename endpoint.
type RenameParameters struct {
	Name               string `json:"Name"`
	Hash               string `json:"Hash"`
	OriginalHash       string `json:"OriginalHash"`
	NameSignatureEmail string `json:"NameSignatureEmail"`
}

// PartialFailure reports one node that failed within an otherwise
// successful batch call. For any batch, the failed set and the implied
// success set partition the requested IDs.
type PartialFailure struct {
	ID      string `json:"LinkID"`
	Code    int    `json:"Code"`
	Message string `json:"Error"`
}

// Event is one remote change notification.
type Event struct {
	EventID string `json:"EventID"`
	Type    int    `json:"EventType"`
	Link    Link   `json:"Link"`
}

// Event types.
const (
	EventTypeDelete = 0
	EventTypeCreate = 1
	EventTypeUpdate = 2
	EventTypeTrash  = 3
)
