package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/ports"
	"github.com/aretw0/troupe/pkg/ports/tests"
)

// MockStore is a minimal SnapshotStore used to check the contract suite itself.
type MockStore struct {
	mu   sync.Mutex
	data map[string]*domain.PersistedSnapshot
}

var _ ports.SnapshotStore = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]*domain.PersistedSnapshot)}
}

func (m *MockStore) Save(_ context.Context, sessionID string, snap *domain.PersistedSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sessionID] = snap.Clone()
	return nil
}

func (m *MockStore) Load(_ context.Context, sessionID string) (*domain.PersistedSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return snap.Clone(), nil
}

func (m *MockStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sessionID)
	return nil
}

func (m *MockStore) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestSnapshotStore_Contract(t *testing.T) {
	tests.RunSnapshotStoreContract(t, NewMockStore())
}
