package homeconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxbind/wiz-core/internal/infrastructure/database"
)

const (
	storageSlot    = "wiz_home_config"
	storageVersion = 1
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store persists the home document in a versioned kv slot. Writes are
// serialized; reads are served from a cached copy once loaded.
type Store struct {
	kv     *database.KV
	logger Logger

	mu     sync.Mutex
	cached *StoredConfig
	loaded bool
}

// NewStore creates a home-config store over the given kv accessor.
func NewStore(kv *database.KV) *Store {
	return &Store{
		kv:     kv,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load returns the stored home config, or ErrNoConfig when none has
// been imported yet.
func (s *Store) Load(ctx context.Context) (*StoredConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) (*StoredConfig, error) {
	if s.loaded {
		if s.cached == nil {
			return nil, ErrNoConfig
		}
		return s.cached, nil
	}

	value, err := s.kv.Get(ctx, storageSlot, storageVersion)
	if errors.Is(err, database.ErrKeyNotFound) {
		s.loaded = true
		s.cached = nil
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, err
	}

	var stored StoredConfig
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return nil, fmt.Errorf("%w: stored config: %v", ErrInvalidDocument, err)
	}
	s.loaded = true
	s.cached = &stored
	return s.cached, nil
}

// Document returns the stored home document, or ErrNoConfig.
func (s *Store) Document(ctx context.Context) (*HomeDocument, error) {
	stored, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if stored.Config == nil {
		return nil, ErrNoConfig
	}
	return stored.Config, nil
}

// HasConfig reports whether a home document is stored. Used for the
// first-setup check in the binding flow.
func (s *Store) HasConfig(ctx context.Context) (bool, error) {
	_, err := s.Load(ctx)
	if errors.Is(err, ErrNoConfig) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Source returns the link or file the stored document came from, or ""
// when nothing is stored.
func (s *Store) Source(ctx context.Context) (string, error) {
	stored, err := s.Load(ctx)
	if errors.Is(err, ErrNoConfig) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return stored.Source, nil
}

// Save stores a home document together with its provenance, replacing
// any previous one.
func (s *Store) Save(ctx context.Context, source string, doc *HomeDocument) error {
	stored := &StoredConfig{
		Source:    source,
		Config:    doc,
		FetchedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding stored config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Put(ctx, storageSlot, storageVersion, string(value)); err != nil {
		return err
	}
	s.cached = stored
	s.loaded = true
	s.logger.Info("home config stored",
		"source", source,
		"devices", len(doc.Devices),
		"rooms", len(doc.Rooms),
	)
	return nil
}

// Clear removes the stored home document.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, storageSlot, storageVersion); err != nil {
		return err
	}
	s.cached = nil
	s.loaded = true
	s.logger.Info("home config cleared")
	return nil
}
