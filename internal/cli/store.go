package cli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/troupe/internal/adapters/file"
	"github.com/aretw0/troupe/internal/adapters/sqlite"
	"github.com/aretw0/troupe/pkg/adapters/memory"
	"github.com/aretw0/troupe/pkg/adapters/redis"
	"github.com/aretw0/troupe/pkg/persistence/middleware"
	"github.com/aretw0/troupe/pkg/ports"
	"github.com/aretw0/troupe/pkg/session"
)

// Store backends accepted by StoreConfig.Kind.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Kind string
	// Dir is the project directory; file and sqlite stores live under Dir/.troupe.
	Dir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// EncryptionKey is a 32 byte key, hex or base64 encoded. Empty disables encryption.
	EncryptionKey string
	// MaskPatterns are regular expressions of context keys to mask before saving.
	MaskPatterns []string
}

// Persistence bundles a store with what the session manager needs from it.
type Persistence struct {
	Store  ports.SnapshotStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases the backend connection.
func (p *Persistence) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// Manager creates a session manager over the store, using the distributed
// locker when the backend has one.
func (p *Persistence) Manager(opts ...session.Option) *session.Manager {
	if p.Locker != nil {
		opts = append([]session.Option{session.WithLocker(p.Locker)}, opts...)
	}
	return session.NewManager(p.Store, opts...)
}

// OpenStore opens the configured backend and wraps it with the configured
// middlewares (masking runs before encryption).
func OpenStore(cfg StoreConfig, logger *slog.Logger) (*Persistence, error) {
	p := &Persistence{}
	var base ports.SnapshotStore

	switch cfg.Kind {
	case "", StoreFile:
		base = file.New(filepath.Join(cfg.Dir, file.DefaultDir))
	case StoreMemory:
		base = memory.NewStore()
	case StoreSQLite:
		dir := filepath.Join(cfg.Dir, ".troupe")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		st, err := sqlite.Open(filepath.Join(dir, "sessions.db"))
		if err != nil {
			return nil, err
		}
		base, p.close = st, st.Close
	case StoreRedis:
		var opts []redis.Option
		if cfg.RedisTTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.RedisTTL))
		}
		st := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		base, p.close = st, st.Close
		p.Locker = redis.NewLocker(st.Client(), "troupe:lock:")
	default:
		return nil, fmt.Errorf("unknown store %q (want memory, file, redis or sqlite)", cfg.Kind)
	}

	var mws []middleware.Middleware
	if len(cfg.MaskPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.MaskPatterns))
	}
	if cfg.EncryptionKey != "" {
		key, err := decodeKey(cfg.EncryptionKey)
		if err != nil {
			p.Close()
			return nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	p.Store = middleware.Chain(base, mws...)

	logger.Debug("session store ready", "kind", cfg.Kind, "masked", len(cfg.MaskPatterns), "encrypted", cfg.EncryptionKey != "")
	return p, nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if key, err := hex.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, fmt.Errorf("encryption key must be 32 bytes, hex or base64 encoded")
}
