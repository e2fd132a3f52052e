package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store provides committed binding entry management with atomic
// read-modify-write semantics per identity key.
//
// All writes go through a single mutex so two concurrent flow invocations
// can never commit two entries for the same MAC: one of them always sees
// the other's entry and re-binds instead.
//
// All public methods are thread-safe.
type Store struct {
	repo    Repository
	writeMu sync.Mutex
	logger  Logger
}

// NewStore creates a new identity store backed by the given repository.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:   repo,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Get retrieves a committed entry by MAC (any format).
// Returns ErrEntryNotFound if the MAC has no committed entry.
func (s *Store) Get(ctx context.Context, mac string) (*BindingEntry, error) {
	uniqueID, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByUniqueID(ctx, uniqueID)
}

// List retrieves all committed entries.
func (s *Store) List(ctx context.Context) ([]BindingEntry, error) {
	return s.repo.List(ctx)
}

// KnownIdentities returns the set of committed unique IDs and the set of
// committed hosts. Used to filter already-bound devices out of scan results.
func (s *Store) KnownIdentities(ctx context.Context) (macs, hosts map[string]bool, err error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	macs = make(map[string]bool, len(entries))
	hosts = make(map[string]bool, len(entries))
	for _, e := range entries {
		macs[e.UniqueID] = true
		hosts[e.Host] = true
	}
	return macs, hosts, nil
}

// SharedHomeLink returns the home-structure link carried by any existing
// entry, or "" if no entry has one. New entries inherit this link so all
// entries in a household share the same home-config reference.
func (s *Store) SharedHomeLink(ctx context.Context) (string, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.HomeLink != "" {
			return e.HomeLink, nil
		}
	}
	return "", nil
}

// Rebind updates the host of an existing entry for the given MAC, if one
// exists. Returns the (updated) entry and true when a re-bind happened,
// or (nil, false) when the MAC is not yet committed.
//
// This is the identity-dedup step of the binding flow: a known device
// reappearing at a new address is an idempotent host update, never a
// second entry.
func (s *Store) Rebind(ctx context.Context, mac, host string) (*BindingEntry, bool, error) {
	uniqueID, err := NormalizeMAC(mac)
	if err != nil {
		return nil, false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.repo.GetByUniqueID(ctx, uniqueID)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if existing.Host != host {
		if err := s.repo.UpdateHost(ctx, uniqueID, host); err != nil {
			return nil, false, fmt.Errorf("updating host for %s: %w", uniqueID, err)
		}
		s.logger.Info("re-bound known device to new host",
			"unique_id", uniqueID,
			"old_host", existing.Host,
			"new_host", host,
		)
		existing.Host = host
	}

	return existing, true, nil
}

// Commit persists a binding entry. The entry's UniqueID may be any MAC
// format; it is normalised before writing.
//
// If an entry for the same identity already exists, its host is updated
// in place instead, and rebound=true is returned. The check
// and the write happen under one lock, so the invariant of one entry per
// MAC holds across concurrent commits.
func (s *Store) Commit(ctx context.Context, entry *BindingEntry) (rebound bool, err error) {
	uniqueID, err := NormalizeMAC(entry.UniqueID)
	if err != nil {
		return false, err
	}
	entry.UniqueID = uniqueID

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.repo.GetByUniqueID(ctx, uniqueID)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		if err := s.repo.Create(ctx, entry); err != nil {
			return false, fmt.Errorf("creating entry for %s: %w", uniqueID, err)
		}
		s.logger.Info("binding entry committed",
			"unique_id", uniqueID,
			"host", entry.Host,
			"title", entry.Title,
		)
		return false, nil

	case err != nil:
		return false, err

	default:
		if existing.Host != entry.Host {
			if err := s.repo.UpdateHost(ctx, uniqueID, entry.Host); err != nil {
				return false, fmt.Errorf("updating host for %s: %w", uniqueID, err)
			}
		}
		s.logger.Info("duplicate identity on commit, re-bound existing entry",
			"unique_id", uniqueID,
			"host", entry.Host,
		)
		return true, nil
	}
}

// Remove deletes a committed entry by MAC (any format).
func (s *Store) Remove(ctx context.Context, mac string) error {
	uniqueID, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Delete(ctx, uniqueID); err != nil {
		return err
	}
	s.logger.Info("binding entry removed", "unique_id", uniqueID)
	return nil
}

// RenameEntry updates the title of a committed entry. Used by the batch
// rename pass after a home-config import.
func (s *Store) RenameEntry(ctx context.Context, mac, title string) error {
	uniqueID, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.repo.UpdateTitle(ctx, uniqueID, title)
}
