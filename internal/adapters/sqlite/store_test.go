package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/troupe/internal/adapters/sqlite"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/ports"
	contract "github.com/aretw0/troupe/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.SnapshotStore = (*sqlite.Store)(nil)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	contract.RunSnapshotStoreContract(t, openStore(t))
}

func TestSQLiteStore_ReopenKeepsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "s1", &domain.PersistedSnapshot{LogicID: "light", Status: domain.StatusActive, Value: "green"}))
	require.NoError(t, store.Close())

	store, err = sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "green", snap.Value)
}

func TestSQLiteStore_ListByLogic(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b", &domain.PersistedSnapshot{LogicID: "light"}))
	require.NoError(t, store.Save(ctx, "a", &domain.PersistedSnapshot{LogicID: "light"}))
	require.NoError(t, store.Save(ctx, "c", &domain.PersistedSnapshot{LogicID: "door"}))

	ids, err := store.ListByLogic(ctx, "light")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Save(ctx, "a", &domain.PersistedSnapshot{LogicID: "door"}))
	ids, err = store.ListByLogic(ctx, "door")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
}
