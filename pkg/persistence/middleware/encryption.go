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
	"io"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// EnvelopeKey is the data key holding the ciphertext in a stored envelope.
const EnvelopeKey = "__encrypted__"

// ErrNotEncrypted is returned when loading a task stored without an envelope.
var ErrNotEncrypted = errors.New("task is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried when the active key cannot decrypt.
	// This enables key rotation without downtime.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.TaskStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals task data with AES-GCM.
// The stored task keeps its id, workflow, timestamps and state key readable;
// the state data is replaced by a single envelope entry.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.TaskStore) ports.TaskStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, task domain.Task) error {
	plainText, err := json.Marshal(task.State.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal task data: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt task data: %w", err)
	}

	envelope := task
	envelope.State = domain.State{
		Key: task.State.Key,
		Data: map[string]any{
			EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
		},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, taskID string) (domain.Task, error) {
	envelope, err := m.next.Load(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	encoded, ok := envelope.State.Data[EnvelopeKey].(string)
	if !ok {
		// Fail closed: a plain record under an encrypting store is not trusted.
		return domain.Task{}, ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to decrypt task data: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(plainText, &data); err != nil {
		return domain.Task{}, fmt.Errorf("failed to unmarshal decrypted data: %w", err)
	}

	task := envelope
	task.State = domain.State{Key: envelope.State.Key, Data: data}
	return task, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, taskID string) error {
	return m.next.Delete(ctx, taskID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
