package mover

import (
	"context"
	"fmt"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/crypto"
	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"github.com/alexjbarnes/drive-sync/internal/store"
)

// MoveClient is the subset of the API client single-node mutations use.
type MoveClient interface {
	Move(ctx context.Context, shareID, linkID string, params api.MoveParameters) error
	Rename(ctx context.Context, shareID, linkID string, params api.RenameParameters) error
}

// NodeMover performs single-node move and rename. Reads happen in one
// transaction, the remote call in between, and the confirmed result is
// written in a second transaction.
type NodeMover struct {
	nodes   *store.NodeStore
	reader  *CryptoMaterialReader
	factory *LinkFactory
	client  MoveClient
}

func NewNodeMover(nodes *store.NodeStore, reader *CryptoMaterialReader, factory *LinkFactory, client MoveClient) *NodeMover {
	return &NodeMover{
		nodes:   nodes,
		reader:  reader,
		factory: factory,
		client:  client,
	}
}

// Move moves one node under newParentID.
func (m *NodeMover) Move(ctx context.Context, nodeID, newParentID string) error {
	material, err := m.reader.ReadNode(nodeID)
	if err != nil {
		return err
	}

	dest, err := m.reader.ReadDestination(newParentID)
	if err != nil {
		return err
	}

	info, err := m.factory.prepareOne(material, dest)
	if err != nil {
		return err
	}

	params := api.MoveParameters{
		ParentLinkID:            dest.NodeID,
		Name:                    info.Link.Name,
		NodePassphrase:          info.Link.NodePassphrase,
		Hash:                    info.Link.Hash,
		OriginalHash:            info.Link.OriginalHash,
		NodePassphraseSignature: info.Link.NodePassphraseSignature,
		SignatureEmail:          info.SignatureEmail,
	}
	if err := m.client.Move(ctx, material.ShareID, nodeID, params); err != nil {
		return fmt.Errorf("moving node %s: %w", nodeID, err)
	}

	return m.nodes.ApplyMoves(dest.NodeID, moveUpdates([]LinkInfo{info}, m.factory.kit.Email))
}

// Rename renames one node in place. The name stays encrypted under the
// current parent's key; only the name and its hash change.
func (m *NodeMover) Rename(ctx context.Context, nodeID, newName string) error {
	node, err := m.nodes.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("node %s: %w", nodeID, apperrors.ErrNodeNotFound)
	}
	if node.ParentID == "" {
		return fmt.Errorf("node %s has no parent: %w", nodeID, apperrors.ErrInvalidState)
	}

	parent, err := m.reader.ReadDestination(node.ParentID)
	if err != nil {
		return err
	}

	name, err := crypto.ValidateNodeName(newName)
	if err != nil {
		return err
	}

	encName, err := m.factory.enc.EncryptName(name, parent.Key)
	if err != nil {
		return fmt.Errorf("encrypting name: %w", err)
	}

	nameHash, err := m.factory.enc.HMACName(name, parent.HashKey)
	if err != nil {
		return fmt.Errorf("hashing name: %w", err)
	}

	params := api.RenameParameters{
		Name:               encName,
		Hash:               nameHash,
		OriginalHash:       node.NameHash,
		NameSignatureEmail: m.factory.kit.Email,
	}
	if err := m.client.Rename(ctx, node.ShareID, nodeID, params); err != nil {
		return fmt.Errorf("renaming node %s: %w", nodeID, err)
	}

	return m.nodes.ApplyMoves(node.ParentID, []store.MoveUpdate{{
		NodeID:         nodeID,
		Name:           encName,
		NameHash:       nameHash,
		NodePassphrase: node.NodePassphrase,
	}})
}
