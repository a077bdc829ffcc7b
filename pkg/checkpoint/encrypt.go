package checkpoint

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// EncryptedStore wraps any Store and encrypts payload bytes with
// AES-256-GCM before delegating Save, decrypting after Load. Key
// management is the caller's concern; the store only holds the key
// material it was given.
type EncryptedStore struct {
	inner Store
	key   []byte // 32 bytes for AES-256
}

// NewEncryptedStore creates an encrypting decorator around inner.
// The key must be 32 bytes for AES-256-GCM.
func NewEncryptedStore(inner Store, key []byte) (*EncryptedStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &EncryptedStore{inner: inner, key: key}, nil
}

// NewEncryptedStoreFromPassphrase derives the key from a passphrase
// hashed with SHA-256.
func NewEncryptedStoreFromPassphrase(inner Store, passphrase string) (*EncryptedStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	hash := sha256.Sum256([]byte(passphrase))
	return NewEncryptedStore(inner, hash[:])
}

// Save encrypts the payload and delegates. The record's content hash
// and size still describe the plaintext; only stored bytes change.
func (s *EncryptedStore) Save(ctx context.Context, record *types.CheckpointRecord) error {
	ciphertext, err := s.encrypt(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to encrypt checkpoint payload: %w", err)
	}

	enc := *record
	enc.Payload = ciphertext
	return s.inner.Save(ctx, &enc)
}

// Load delegates and decrypts the payload
func (s *EncryptedStore) Load(ctx context.Context, checkpointID string) (*types.CheckpointRecord, error) {
	record, err := s.inner.Load(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.decrypt(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt checkpoint payload: %w", err)
	}
	record.Payload = plaintext
	return record, nil
}

// List delegates; listings carry metadata only
func (s *EncryptedStore) List(ctx context.Context) ([]*types.CheckpointRecord, error) {
	return s.inner.List(ctx)
}

// Delete delegates
func (s *EncryptedStore) Delete(ctx context.Context, checkpointID string) error {
	return s.inner.Delete(ctx, checkpointID)
}

// Close delegates
func (s *EncryptedStore) Close() error {
	return s.inner.Close()
}

// encrypt seals plaintext with AES-256-GCM, nonce prepended
func (s *EncryptedStore) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens data sealed by encrypt, expecting the nonce prefix
func (s *EncryptedStore) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, data := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
