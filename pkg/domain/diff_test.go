package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	active := domain.StatusActive
	done := domain.StatusDone

	tests := []struct {
		name     string
		old      *domain.PersistedSnapshot
		new      *domain.PersistedSnapshot
		wantDiff *domain.SnapshotDiff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &domain.PersistedSnapshot{
				Status:  domain.StatusActive,
				Value:   "idle",
				Context: map[string]any{"a": 1},
			},
			wantDiff: &domain.SnapshotDiff{
				SessionID: "sess-1",
				Value:     "idle",
				Status:    &active,
				Context:   map[string]any{"a": 1},
			},
		},
		{
			name: "No Changes",
			old: &domain.PersistedSnapshot{
				Status:  domain.StatusActive,
				Value:   map[string]any{"on": "playing"},
				Context: map[string]any{"a": 1},
			},
			new: &domain.PersistedSnapshot{
				Status:  domain.StatusActive,
				Value:   map[string]any{"on": "playing"},
				Context: map[string]any{"a": 1},
			},
			wantDiff: nil,
		},
		{
			name: "Completion",
			old: &domain.PersistedSnapshot{
				Status: domain.StatusActive,
				Value:  "review",
			},
			new: &domain.PersistedSnapshot{
				Status: domain.StatusDone,
				Value:  "approved",
				Output: "ok",
			},
			wantDiff: &domain.SnapshotDiff{
				SessionID: "sess-1",
				Value:     "approved",
				Status:    &done,
				Output:    "ok",
			},
		},
		{
			name: "Context Added, Modified & Deleted",
			old: &domain.PersistedSnapshot{
				Status:  domain.StatusActive,
				Value:   "mid",
				Context: map[string]any{"keep": 1, "change": "a", "drop": true},
			},
			new: &domain.PersistedSnapshot{
				Status:  domain.StatusActive,
				Value:   "mid",
				Context: map[string]any{"keep": 1, "change": "b", "add": 2},
			},
			wantDiff: &domain.SnapshotDiff{
				SessionID: "sess-1",
				Context:   map[string]any{"change": "b", "add": 2, "drop": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.Diff("sess-1", tt.old, tt.new)
			assert.Equal(t, tt.wantDiff, got)
		})
	}
}

func TestDiff_JSONOmitsUnchangedFields(t *testing.T) {
	old := &domain.PersistedSnapshot{Status: domain.StatusActive, Value: "a", Context: map[string]any{"n": 1}}
	next := &domain.PersistedSnapshot{Status: domain.StatusActive, Value: "a", Context: map[string]any{"n": 2}}

	data, err := json.Marshal(domain.Diff("s", old, next))
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s","context":{"n":2}}`, string(data))
}

func TestPersistedSnapshot_Clone(t *testing.T) {
	orig := &domain.PersistedSnapshot{
		Value:        map[string]any{"on": "playing"},
		Context:      map[string]any{"items": []any{"a"}, "meta": map[string]any{"n": 1}},
		HistoryValue: map[string][]string{"h": {"x"}},
		Children: map[string]domain.PersistedChild{
			"c": {Src: "worker", Snapshot: &domain.PersistedSnapshot{Context: map[string]any{"k": "v"}}},
		},
		Pending: []domain.Event{domain.NewEvent("GO", map[string]any{"n": 1})},
	}

	clone := orig.Clone()
	require.Equal(t, orig, clone)

	clone.Value.(map[string]any)["on"] = "paused"
	clone.Context["items"].([]any)[0] = "b"
	clone.Context["meta"].(map[string]any)["n"] = 2
	clone.HistoryValue["h"][0] = "y"
	clone.Children["c"].Snapshot.Context["k"] = "w"
	clone.Pending[0].Payload.(map[string]any)["n"] = 2

	assert.Equal(t, "playing", orig.Value.(map[string]any)["on"])
	assert.Equal(t, "a", orig.Context["items"].([]any)[0])
	assert.Equal(t, 1, orig.Context["meta"].(map[string]any)["n"])
	assert.Equal(t, "x", orig.HistoryValue["h"][0])
	assert.Equal(t, "v", orig.Children["c"].Snapshot.Context["k"])
	assert.Equal(t, 1, orig.Pending[0].Payload.(map[string]any)["n"])

	var nilSnap *domain.PersistedSnapshot
	assert.Nil(t, nilSnap.Clone())
}
