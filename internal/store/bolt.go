package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	locationBucket = []byte("location")
	bestKey        = []byte("best")
)

// BoltStore persists the best location between sessions and serves it back
// as the last known fix of the cache provider.
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// Open opens or creates the database at path.
func Open(path string, logger zerolog.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open location store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(locationBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize location bucket: %w", err)
	}

	return &BoltStore{db: db, logger: logger}, nil
}

// Save stores s as the best location.
func (b *BoltStore) Save(s *location.Sample) error {
	data, err := json.Marshal(s.ToFix())
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(locationBucket).Put(bestKey, data)
	})
}

// Load returns the stored best location, or nil when nothing was saved.
// The returned sample is attributed to the cache provider.
func (b *BoltStore) Load() (*location.Sample, error) {
	var fix *location.Fix
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(locationBucket).Get(bestKey)
		if data == nil {
			return nil
		}
		fix = &location.Fix{}
		return json.Unmarshal(data, fix)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	if fix == nil {
		return nil, nil
	}

	fix.Provider = string(location.CACHE)
	return fix.Sample(location.CACHE), nil
}

// Sink saves every new best location. Failures are logged.
func (b *BoltStore) Sink() location.Sink {
	return func(s *location.Sample) {
		if err := b.Save(s); err != nil {
			b.logger.Error().Err(err).Msg("Failed to persist best location")
		}
	}
}

// Close closes the database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// ID returns the cache provider.
func (b *BoltStore) ID() location.ProviderID {
	return location.CACHE
}

// LastKnown returns the location saved by a previous session.
func (b *BoltStore) LastKnown(_ context.Context) (*location.Sample, error) {
	return b.Load()
}

// Available is always true once the database is open.
func (b *BoltStore) Available(_ context.Context) bool {
	return b.db != nil
}

// Subscribe accepts the subscription but never delivers: the cache only
// contributes to the initial fusion.
func (b *BoltStore) Subscribe(_ time.Duration, _ float64, onSample func(*location.Sample)) (location.Unsubscribe, error) {
	if onSample == nil {
		return nil, errors.New("onSample callback is required")
	}
	return func() {}, nil
}
