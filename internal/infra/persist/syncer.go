package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"jentic/internal/domain"
)

const defaultSaveTimeout = 5 * time.Second

// Cache is the broker side of persistence.
type Cache interface {
	Snapshot() []domain.ExecutionMetadata
	Import(metas []domain.ExecutionMetadata) int
}

// ownWriteChecker is implemented by stores that recognise their own last save.
type ownWriteChecker interface {
	IsOwnWrite() bool
}

// Syncer copies the broker cache to a store after every load and seeds the
// cache from the store on start.
type Syncer struct {
	store  Store
	cache  Cache
	logger *zap.Logger
	mu     sync.Mutex
}

func NewSyncer(store Store, cache Cache, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{store: store, cache: cache, logger: logger.Named("persist")}
}

// Restore imports stored metadata that has not expired yet and returns the
// number of entries accepted.
func (s *Syncer) Restore(ctx context.Context) (int, error) {
	metas, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	accepted := s.cache.Import(metas)
	s.logger.Info("restored metadata", zap.Int("stored", len(metas)), zap.Int("accepted", accepted))
	return accepted, nil
}

// Save writes the current cache contents.
func (s *Syncer) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save(ctx, s.cache.Snapshot())
}

// OnLoad saves after a load; it matches broker.LoadListener.
func (s *Syncer) OnLoad([]domain.ExecutionMetadata) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSaveTimeout)
	defer cancel()
	if err := s.Save(ctx); err != nil {
		s.logger.Warn("save metadata failed", zap.Error(err))
	}
}

// Reload is a Watcher callback that re-imports the store. Changes caused by
// this process's own saves are skipped, so entries forgotten since the save
// stay forgotten.
func (s *Syncer) Reload(ctx context.Context) {
	if checker, ok := s.store.(ownWriteChecker); ok && checker.IsOwnWrite() {
		s.logger.Debug("skipping reload of own artifact write")
		return
	}
	if _, err := s.Restore(ctx); err != nil {
		s.logger.Warn("reload metadata failed", zap.Error(err))
	}
}
