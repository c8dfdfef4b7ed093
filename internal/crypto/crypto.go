package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation.
	scryptN = 32768

	// scryptR is the block size parameter for scrypt key derivation.
	scryptR = 8

	// scryptP is the parallelization parameter for scrypt key derivation.
	scryptP = 1

	// scryptKeyLen is the derived key length in bytes.
	scryptKeyLen = 32
)

// DeriveKey derives a 32-byte key from passphrase and salt using scrypt.
// Both inputs are normalized to NFKC before hashing.
func DeriveKey(passphrase, salt string) ([]byte, error) {
	passphrase = norm.NFKC.String(passphrase)
	salt = norm.NFKC.String(salt)

	key, err := scrypt.Key([]byte(passphrase), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	return key, nil
}

// SignersKit is the signing identity used when re-encrypting node
// material: the address email plus the key derived from its passphrase.
type SignersKit struct {
	Email      string
	AddressKey []byte
}

// NewSignersKit derives the address key for the given identity.
func NewSignersKit(email, passphrase string) (SignersKit, error) {
	key, err := DeriveKey(passphrase, email)
	if err != nil {
		return SignersKit{}, fmt.Errorf("deriving address key: %w", err)
	}

	return SignersKit{Email: email, AddressKey: key}, nil
}

// Sign produces a detached hex signature of data under the address key.
func (k SignersKit) Sign(data string) string {
	mac := hmac.New(sha256.New, k.AddressKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Encryptor implements the cryptographic operations the mutation pipeline
// needs: re-encrypting names and passphrases between parent keys, name
// hashing, and node key re-derivation for anonymous nodes. All encrypted
// values are hex([12-byte IV][ciphertext+GCM tag]).
type Encryptor struct{}

func gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return gcm, nil
}

// EncryptName encrypts a cleartext name under the parent key using
// deterministic AES-GCM: the IV is derived from SHA-256(plaintext)[0:12],
// so identical names produce identical ciphertext under one key.
func (Encryptor) EncryptName(clearName string, parentKey []byte) (string, error) {
	gcm, err := gcmFor(parentKey)
	if err != nil {
		return "", err
	}

	plaintext := []byte(clearName)
	h := sha256.Sum256(plaintext)
	iv := h[:gcm.NonceSize()]
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	result := make([]byte, len(iv)+len(ciphertext))
	copy(result, iv)
	copy(result[len(iv):], ciphertext)

	return hex.EncodeToString(result), nil
}

// EncryptSecret encrypts a secret (node passphrase) under the parent key
// with a random IV.
func (Encryptor) EncryptSecret(plaintext string, parentKey []byte) (string, error) {
	gcm, err := gcmFor(parentKey)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}
	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), nil)

	result := make([]byte, len(iv)+len(ciphertext))
	copy(result, iv)
	copy(result[len(iv):], ciphertext)

	return hex.EncodeToString(result), nil
}

// Decrypt reverses EncryptName or EncryptSecret under the given key.
func (Encryptor) Decrypt(hexStr string, key []byte) (string, error) {
	gcm, err := gcmFor(key)
	if err != nil {
		return "", err
	}

	data, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("decoding hex: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(data))
	}

	iv := data[:gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, iv, data[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}

	return string(plaintext), nil
}

// ReencryptName decrypts the old encrypted name with the old parent key
// (verifying the chain is intact) and encrypts the validated new clear
// name under the new parent key.
func (e Encryptor) ReencryptName(oldEncryptedName string, oldParentKey []byte, newClearName string, newParentKey []byte) (string, error) {
	if _, err := e.Decrypt(oldEncryptedName, oldParentKey); err != nil {
		return "", fmt.Errorf("decrypting old name: %w", err)
	}

	return e.EncryptName(newClearName, newParentKey)
}

// ReencryptPassphrase chains the node passphrase from the old parent key
// to the new parent key, preserving the passphrase itself.
func (e Encryptor) ReencryptPassphrase(oldEncryptedPassphrase string, oldParentKey, newParentKey []byte) (string, error) {
	passphrase, err := e.Decrypt(oldEncryptedPassphrase, oldParentKey)
	if err != nil {
		return "", fmt.Errorf("decrypting old passphrase: %w", err)
	}

	return e.EncryptSecret(passphrase, newParentKey)
}

// NodeCredential is the result of re-deriving a node's keys from scratch.
type NodeCredential struct {
	NodePassphrase string
	Signature      string
}

// UpdateNodeKeys re-encrypts a decrypted node passphrase under the new
// parent key and signs it with the given identity. Used for anonymous
// nodes, which have no stable prior signer to reuse.
func (e Encryptor) UpdateNodeKeys(decryptedPassphrase string, kit SignersKit, newParentKey []byte) (NodeCredential, error) {
	encrypted, err := e.EncryptSecret(decryptedPassphrase, newParentKey)
	if err != nil {
		return NodeCredential{}, fmt.Errorf("encrypting node passphrase: %w", err)
	}

	return NodeCredential{
		NodePassphrase: encrypted,
		Signature:      kit.Sign(decryptedPassphrase),
	}, nil
}

// HMACName computes the name hash used for duplicate detection: hex
// HMAC-SHA256 of the cleartext name under the parent's hash key.
func (Encryptor) HMACName(name string, hashKey []byte) (string, error) {
	if len(hashKey) == 0 {
		return "", fmt.Errorf("empty hash key")
	}

	mac := hmac.New(sha256.New, hashKey)
	mac.Write([]byte(name))

	return hex.EncodeToString(mac.Sum(nil)), nil
}
