package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/troupe/pkg/adapters/memory"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	// Mask keys containing "password" or "ssn"
	secure := middleware.NewPIIMiddleware([]string{"password", "ssn"})(underlying)

	ctx := context.Background()
	snap := &domain.PersistedSnapshot{
		Status: domain.StatusActive,
		Context: map[string]any{
			"username":      "jdoe",
			"user_password": "secret123",
			"details": map[string]any{
				"address":    "123 St",
				"ssn_number": "999-99-9999",
			},
		},
		Children: map[string]domain.PersistedChild{
			"kyc": {Src: "kyc", Snapshot: &domain.PersistedSnapshot{Context: map[string]any{"ssn": "111"}}},
		},
	}

	require.NoError(t, secure.Save(ctx, "pii", snap))
	assert.Equal(t, "secret123", snap.Context["user_password"], "the caller's snapshot is not modified")

	stored, err := underlying.Load(ctx, "pii")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", stored.Context["username"])
	assert.Equal(t, middleware.Mask, stored.Context["user_password"])
	assert.Equal(t, middleware.Mask, stored.Context["details"].(map[string]any)["ssn_number"])
	assert.Equal(t, "123 St", stored.Context["details"].(map[string]any)["address"])
	assert.Equal(t, middleware.Mask, stored.Children["kyc"].Snapshot.Context["ssn"])
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	underlying := memory.NewStore()
	key := make([]byte, 32)
	store := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{"token"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s", &domain.PersistedSnapshot{Context: map[string]any{"token": "abc", "n": 1}}))

	// Masking runs before encryption, so decrypting yields the masked value.
	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Context["token"])
	assert.EqualValues(t, 1, loaded.Context["n"])
}
