package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/ports"
)

// Mask replaces the values of masked keys.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks context values whose keys match the patterns.
// Nested maps and the contexts of persisted children are masked too.
// Masking is one-way: a restored actor sees Mask instead of the original value.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, snap *domain.PersistedSnapshot) error {
	// Work on a copy; the caller may still hold the snapshot.
	cloned := snap.Clone()
	m.mask(cloned)
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) mask(snap *domain.PersistedSnapshot) {
	if snap == nil {
		return
	}
	maskMap(snap.Context, m.patterns)
	for _, child := range snap.Children {
		m.mask(child.Snapshot)
	}
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.PersistedSnapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
