package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"jentic/internal/domain"
)

var (
	metadataBucket = []byte("metadata")
	metaBucket     = []byte("meta")
	versionKey     = []byte("version")
)

var ErrStoreClosed = errors.New("metadata store is closed")

// BoltStore keeps metadata in a local bbolt database, one key per identifier.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func OpenBoltStore(path string) (*BoltStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("metadata db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure metadata dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, path: trimmed}, nil
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if current := meta.Get(versionKey); current != nil {
			if err := checkVersion(string(current)); err != nil {
				return err
			}
		} else if err := meta.Put(versionKey, []byte(domain.ArtifactVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(metadataBucket); err != nil {
			return fmt.Errorf("create metadata bucket: %w", err)
		}
		return nil
	})
}

// Save replaces the stored entries with metas in one transaction.
func (s *BoltStore) Save(_ context.Context, metas []domain.ExecutionMetadata) error {
	encoded := make(map[string][]byte, len(metas))
	for _, meta := range metas {
		data, err := encodeEntry(meta)
		if err != nil {
			return err
		}
		encoded[meta.ID.String()] = data
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(metadataBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("clear metadata: %w", err)
		}
		bucket, err := tx.CreateBucket(metadataBucket)
		if err != nil {
			return fmt.Errorf("create metadata bucket: %w", err)
		}
		for key, data := range encoded {
			if err := bucket.Put([]byte(key), data); err != nil {
				return fmt.Errorf("write metadata %s: %w", key, err)
			}
		}
		return nil
	})
}

// Load returns every stored entry in key order.
func (s *BoltStore) Load(_ context.Context) ([]domain.ExecutionMetadata, error) {
	var out []domain.ExecutionMetadata
	err := s.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(metadataBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(key, value []byte) error {
			meta, err := decodeEntry(string(key), value)
			if err != nil {
				return err
			}
			out = append(out, meta)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BoltStore) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}
