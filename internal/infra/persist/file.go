package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
)

// FileStore keeps metadata in a jentic.json artifact.
type FileStore struct {
	path   string
	now    func() time.Time
	logger *zap.Logger
	mu     sync.Mutex

	// capture time of the last artifact this store wrote
	lastSaved time.Time
}

func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("artifact path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   trimmed,
		now:    time.Now,
		logger: logger.Named("artifact"),
	}, nil
}

// Path returns the artifact location.
func (s *FileStore) Path() string {
	return s.path
}

// Save replaces the artifact atomically.
func (s *FileStore) Save(_ context.Context, metas []domain.ExecutionMetadata) error {
	artifact := NewArtifact(metas, s.now())
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace artifact: %w", err)
	}
	s.lastSaved = artifact.CapturedAt
	s.logger.Debug("artifact saved",
		telemetry.EventField(telemetry.EventArtifactSaved),
		zap.String("path", s.path),
		zap.Int("entries", len(metas)),
	)
	return nil
}

// Load reads the artifact. A missing file is an empty store.
func (s *FileStore) Load(_ context.Context) ([]domain.ExecutionMetadata, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact %s: %w", s.path, err)
	}
	artifact, err := DecodeArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", s.path, err)
	}
	entries, err := artifact.Entries()
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", s.path, err)
	}
	s.logger.Debug("artifact read",
		telemetry.EventField(telemetry.EventArtifactRead),
		zap.String("path", s.path),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

// IsOwnWrite reports whether the artifact on disk is the one this store
// saved last, judged by its captured_at.
func (s *FileStore) IsOwnWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSaved.IsZero() {
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var header struct {
		CapturedAt time.Time `json:"captured_at"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return false
	}
	return header.CapturedAt.Equal(s.lastSaved)
}

func (s *FileStore) Close() error {
	return nil
}
