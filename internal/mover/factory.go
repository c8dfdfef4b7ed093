package mover

import (
	"context"
	"fmt"

	"github.com/alexjbarnes/drive-sync/internal/api"
	"github.com/alexjbarnes/drive-sync/internal/crypto"
	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"golang.org/x/sync/errgroup"
)

const factoryWorkers = 8

// LinkFactory turns nodes into move payloads for a new parent. Each
// node is read and prepared in its own unit, so one unreadable or
// unpreparable node never blocks the rest: failed nodes are dropped
// and at most one error is retained for the caller, while every
// preparable node still gets a payload.
type LinkFactory struct {
	reader *CryptoMaterialReader
	enc    crypto.Encryptor
	kit    crypto.SignersKit
}

func NewLinkFactory(reader *CryptoMaterialReader, kit crypto.SignersKit) *LinkFactory {
	return &LinkFactory{reader: reader, kit: kit}
}

// PrepareNodeLinks loads each node's crypto material and computes the
// new encrypted name, name hash, passphrase, and content hash,
// targeting dest. Input order is preserved for the successful subset.
func (f *LinkFactory) PrepareNodeLinks(ctx context.Context, nodeIDs []string, dest NodeParentCryptoMaterial) ([]LinkInfo, error) {
	results := make([]*LinkInfo, len(nodeIDs))
	errs := make([]error, len(nodeIDs))

	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(factoryWorkers)

	for i, id := range nodeIDs {
		group.Go(func() error {
			m, err := f.reader.ReadNode(id)
			if err != nil {
				errs[i] = err
				return nil
			}
			info, err := f.prepareOne(m, dest)
			if err != nil {
				errs[i] = fmt.Errorf("preparing %s: %w", id, err)
				return nil
			}
			results[i] = &info
			return nil
		})
	}
	group.Wait()

	links := make([]LinkInfo, 0, len(nodeIDs))
	for _, info := range results {
		if info != nil {
			links = append(links, *info)
		}
	}

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}

	return links, firstErr
}

func (f *LinkFactory) prepareOne(m NodeCryptoMaterial, dest NodeParentCryptoMaterial) (LinkInfo, error) {
	if m.VolumeID != dest.VolumeID {
		return LinkInfo{}, apperrors.ErrCrossVolume
	}

	name, err := crypto.ValidateNodeName(m.ClearName)
	if err != nil {
		return LinkInfo{}, err
	}

	nameHash, err := f.enc.HMACName(name, dest.HashKey)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("hashing name: %w", err)
	}

	contentHash, err := f.contentHash(m, dest)
	if err != nil {
		return LinkInfo{}, err
	}

	if m.IsAnonymous {
		return f.prepareAnonymous(m, dest, name, nameHash, contentHash)
	}

	return f.prepareNormal(m, dest, name, nameHash, contentHash)
}

// prepareAnonymous re-derives the node's credential from scratch under
// the new parent and signs it with our own identity. The signature must
// be present on the wire for anonymous links.
func (f *LinkFactory) prepareAnonymous(m NodeCryptoMaterial, dest NodeParentCryptoMaterial, name, nameHash string, contentHash *string) (LinkInfo, error) {
	encName, err := f.enc.EncryptName(name, dest.Key)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("encrypting name: %w", err)
	}

	cred, err := f.enc.UpdateNodeKeys(m.DecryptedPassphrase, m.Kit, dest.Key)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("rederiving node keys: %w", err)
	}

	return LinkInfo{
		Link: api.MoveLink{
			LinkID:                  m.NodeID,
			Name:                    encName,
			NodePassphrase:          cred.NodePassphrase,
			Hash:                    nameHash,
			OriginalHash:            m.OldNameHash,
			ContentHash:             contentHash,
			NodePassphraseSignature: &cred.Signature,
		},
		IsAnonymous:    true,
		SignatureEmail: m.Kit.Email,
	}, nil
}

// prepareNormal chains the existing name and passphrase to the new
// parent key. The original signature stays valid, so no signature is
// sent.
func (f *LinkFactory) prepareNormal(m NodeCryptoMaterial, dest NodeParentCryptoMaterial, name, nameHash string, contentHash *string) (LinkInfo, error) {
	encName, err := f.enc.ReencryptName(m.OldEncryptedName, m.OldParentKey, name, dest.Key)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("reencrypting name: %w", err)
	}

	passphrase, err := f.enc.ReencryptPassphrase(m.OldEncryptedPassphrase, m.OldParentKey, dest.Key)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("reencrypting passphrase: %w", err)
	}

	return LinkInfo{
		Link: api.MoveLink{
			LinkID:                  m.NodeID,
			Name:                    encName,
			NodePassphrase:          passphrase,
			Hash:                    nameHash,
			OriginalHash:            m.OldNameHash,
			ContentHash:             contentHash,
			NodePassphraseSignature: nil,
		},
		IsAnonymous:    false,
		SignatureEmail: m.Kit.Email,
	}, nil
}

// contentHash picks the photo content hash for the new parent: a fresh
// digest HMAC when the decrypted digest is known, the previously
// registered hash verbatim when not, nil when the node has neither.
func (f *LinkFactory) contentHash(m NodeCryptoMaterial, dest NodeParentCryptoMaterial) (*string, error) {
	if m.ContentDigest != "" {
		h, err := f.enc.HMACName(m.ContentDigest, dest.HashKey)
		if err != nil {
			return nil, fmt.Errorf("hashing content digest: %w", err)
		}
		return &h, nil
	}

	if m.PrevContentHash != "" {
		h := m.PrevContentHash
		return &h, nil
	}

	return nil, nil
}
