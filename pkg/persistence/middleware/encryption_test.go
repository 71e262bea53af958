package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/persistence/middleware"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func secretTask() domain.Task {
	return domain.Task{
		ID:          "rfq-1",
		WorkflowKey: "procurement",
		State:       domain.NewState("processing", map[string]any{"supplier_bank": "DE89 3704"}),
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewStore())
	ports.RunTaskStoreContract(t, store)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	secure := mw(underlying)
	ctx := context.Background()

	require.NoError(t, secure.Save(ctx, secretTask()))

	stored, err := underlying.Load(ctx, "rfq-1")
	require.NoError(t, err)
	assert.NotContains(t, stored.State.Data, "supplier_bank")
	assert.Contains(t, stored.State.Data, middleware.EnvelopeKey)
	assert.Equal(t, "processing", stored.State.Key, "state key stays readable for listing")
	assert.Equal(t, "procurement", stored.WorkflowKey)

	loaded, err := secure.Load(ctx, "rfq-1")
	require.NoError(t, err)
	assert.Equal(t, "DE89 3704", loaded.State.Data["supplier_bank"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	old := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, old.Save(ctx, secretTask()))

	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)
	loaded, err := rotated.Load(ctx, "rfq-1")
	require.NoError(t, err)
	assert.Equal(t, "DE89 3704", loaded.State.Data["supplier_bank"])

	// Without the old key the record is unreadable.
	strict := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})(underlying)
	_, err = strict.Load(ctx, "rfq-1")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_FailsClosedOnPlainRecords(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, secretTask()))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Load(ctx, "rfq-1")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)

	_, err = secure.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestEncryptionMiddleware_InvalidKeyPanics(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}
