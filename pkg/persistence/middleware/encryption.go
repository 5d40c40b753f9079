package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// envelopeKey holds the base64 ciphertext in the Data of an envelope.
const envelopeKey = "__encrypted__"

type encryptionMiddleware struct {
	next ports.SnapshotStore
	// keys[0] seals; the rest are only tried when opening.
	keys []cipher.AEAD
}

// NewEncryptionMiddleware creates a middleware that seals whole snapshots with
// AES-256-GCM. The session id is authenticated alongside the ciphertext, so an
// envelope copied to another session fails to open.
// It panics if any key is not 32 bytes.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	keys := make([]cipher.AEAD, 0, 1+len(config.FallbackKeys))
	for _, k := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		aead, err := newAEAD(k)
		if err != nil {
			panic(fmt.Sprintf("invalid encryption key: %v", err))
		}
		keys = append(keys, aead)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &encryptionMiddleware{next: next, keys: keys}
	}
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (m *encryptionMiddleware) Save(ctx context.Context, sessionID string, snap *domain.PersistedSnapshot) error {
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	aead := m.keys[0]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to encrypt snapshot: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, []byte(sessionID))

	// Listing and monitoring still need logic id, version and status.
	return m.next.Save(ctx, sessionID, &domain.PersistedSnapshot{
		LogicID: snap.LogicID,
		Version: snap.Version,
		Status:  snap.Status,
		Data:    map[string]any{envelopeKey: base64.StdEncoding.EncodeToString(sealed)},
	})
}

func (m *encryptionMiddleware) Load(ctx context.Context, sessionID string) (*domain.PersistedSnapshot, error) {
	envelope, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// A configured store never falls back to plain snapshots.
	data, _ := envelope.Data.(map[string]any)
	encoded, ok := data[envelopeKey].(string)
	if !ok {
		return nil, errors.New("snapshot is missing encrypted data envelope")
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plain, err := m.open(sealed, []byte(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt snapshot: %w", err)
	}

	var snap domain.PersistedSnapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted snapshot: %w", err)
	}
	return &snap, nil
}

// open tries the active key, then each fallback in order.
func (m *encryptionMiddleware) open(sealed, additional []byte) ([]byte, error) {
	for _, aead := range m.keys {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], additional); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("no key could open the envelope")
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
