package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SampleSnapshot returns a snapshot exercising every persisted field.
func SampleSnapshot() *domain.PersistedSnapshot {
	return &domain.PersistedSnapshot{
		LogicID: "checkout",
		Version: "1.0.0",
		Status:  domain.StatusActive,
		Value:   map[string]any{"payment": "card"},
		Context: map[string]any{"user": "ada", "count": 42},
		HistoryValue: map[string][]string{
			"checkout.payment.hist": {"checkout.payment.card"},
		},
		Children: map[string]domain.PersistedChild{
			"charge": {
				Src:      "charge",
				SystemID: "charger",
				Snapshot: &domain.PersistedSnapshot{Status: domain.StatusActive, Data: "pending"},
			},
		},
		Pending: []domain.Event{domain.NewEvent("RETRY", nil)},
		Scheduled: []domain.ScheduledEvent{{
			ID:    "after.30s.checkout.payment",
			Event: domain.NewEvent("after.30s.checkout.payment", nil),
			DueAt: time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC),
		}},
	}
}

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store ports.SnapshotStore) {
	t.Helper()
	ctx := context.Background()
	sessionID := fmt.Sprintf("contract-%d", time.Now().UnixNano())

	t.Run("Save and Load", func(t *testing.T) {
		snap := SampleSnapshot()
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, snap.LogicID, loaded.LogicID)
		assert.Equal(t, snap.Version, loaded.Version)
		assert.Equal(t, snap.Status, loaded.Status)
		assert.Equal(t, "card", loaded.Value.(map[string]any)["payment"])
		assert.Equal(t, "ada", loaded.Context["user"])
		// Encoded stores turn numbers into float64.
		assert.EqualValues(t, 42, loaded.Context["count"])
		assert.Equal(t, snap.HistoryValue, loaded.HistoryValue)
		require.Contains(t, loaded.Children, "charge")
		assert.Equal(t, "charger", loaded.Children["charge"].SystemID)
		assert.Equal(t, "pending", loaded.Children["charge"].Snapshot.Data)
		assert.Equal(t, []domain.Event{domain.NewEvent("RETRY", nil)}, loaded.Pending)
		require.Len(t, loaded.Scheduled, 1)
		assert.True(t, snap.Scheduled[0].DueAt.Equal(loaded.Scheduled[0].DueAt))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		snap := SampleSnapshot()
		snap.Status = domain.StatusDone
		snap.Output = "paid"
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDone, loaded.Status)
		assert.Equal(t, "paid", loaded.Output)
	})

	t.Run("Loaded Copy Is Isolated", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Context["user"] = "mallory"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "ada", again.Context["user"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, sessionID), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, SampleSnapshot()))
		require.NoError(t, store.Save(ctx, id2, SampleSnapshot()))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
		assert.NotContains(t, sessions, sessionID)
	})
}

// DefinitionLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.DefinitionLoader.
func DefinitionLoaderContractTest(t *testing.T, loader ports.DefinitionLoader, setupData map[string][]byte) {
	t.Helper()

	t.Run("GetDefinition_Success", func(t *testing.T) {
		for name, expected := range setupData {
			content, format, err := loader.GetDefinition(name)
			require.NoError(t, err, "getting %s", name)
			assert.Equal(t, string(expected), string(content))
			assert.NotEmpty(t, format)
		}
	})

	t.Run("GetDefinition_NotFound", func(t *testing.T) {
		_, _, err := loader.GetDefinition("non-existent-machine")
		assert.Error(t, err)
	})

	t.Run("ListDefinitions", func(t *testing.T) {
		names, err := loader.ListDefinitions()
		require.NoError(t, err)
		assert.Len(t, names, len(setupData))
		for name := range setupData {
			assert.Contains(t, names, name)
		}
		assert.IsNonDecreasing(t, names)
	})
}
