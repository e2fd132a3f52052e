package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for binding entry persistence.
// This abstraction enables unit testing without database dependencies.
type Repository interface {
	// GetByUniqueID retrieves an entry by its normalised MAC.
	// Returns ErrEntryNotFound if the entry does not exist.
	GetByUniqueID(ctx context.Context, uniqueID string) (*BindingEntry, error)

	// List retrieves all committed entries, ordered by creation time.
	List(ctx context.Context) ([]BindingEntry, error)

	// Create inserts a new entry.
	// Returns ErrEntryExists if the unique ID is already committed.
	Create(ctx context.Context, entry *BindingEntry) error

	// UpdateHost updates the host of an existing entry.
	// Returns ErrEntryNotFound if the entry does not exist.
	UpdateHost(ctx context.Context, uniqueID, host string) error

	// UpdateTitle updates the title of an existing entry.
	// Returns ErrEntryNotFound if the entry does not exist.
	UpdateTitle(ctx context.Context, uniqueID, title string) error

	// Delete removes an entry by unique ID.
	// Returns ErrEntryNotFound if the entry does not exist.
	Delete(ctx context.Context, uniqueID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// binding_entries table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByUniqueID retrieves an entry by its normalised MAC.
func (r *SQLiteRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*BindingEntry, error) {
	query := `
		SELECT unique_id, host, title, home_link, created_at, updated_at
		FROM binding_entries
		WHERE unique_id = ?`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, uniqueID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying entry by unique id: %w", err)
	}
	return entry, nil
}

// List retrieves all committed entries.
func (r *SQLiteRepository) List(ctx context.Context) ([]BindingEntry, error) {
	query := `
		SELECT unique_id, host, title, home_link, created_at, updated_at
		FROM binding_entries
		ORDER BY created_at, unique_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []BindingEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Create inserts a new entry.
func (r *SQLiteRepository) Create(ctx context.Context, entry *BindingEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	query := `
		INSERT INTO binding_entries (unique_id, host, title, home_link, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entry.UniqueID,
		entry.Host,
		entry.Title,
		nullableString(entry.HomeLink),
		entry.CreatedAt.Format(time.RFC3339Nano),
		entry.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEntryExists
		}
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// UpdateHost updates the host of an existing entry.
func (r *SQLiteRepository) UpdateHost(ctx context.Context, uniqueID, host string) error {
	return r.updateColumn(ctx, uniqueID, "host", host)
}

// UpdateTitle updates the title of an existing entry.
func (r *SQLiteRepository) UpdateTitle(ctx context.Context, uniqueID, title string) error {
	return r.updateColumn(ctx, uniqueID, "title", title)
}

// updateColumn updates a single column and the updated_at timestamp.
// The column name comes from a fixed caller-side set, never user input.
func (r *SQLiteRepository) updateColumn(ctx context.Context, uniqueID, column, value string) error {
	query := fmt.Sprintf(
		"UPDATE binding_entries SET %s = ?, updated_at = ? WHERE unique_id = ?", column)

	result, err := r.db.ExecContext(ctx, query,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
		uniqueID,
	)
	if err != nil {
		return fmt.Errorf("updating entry %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Delete removes an entry by unique ID.
func (r *SQLiteRepository) Delete(ctx context.Context, uniqueID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM binding_entries WHERE unique_id = ?", uniqueID)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanEntry.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a binding entry from a row.
func scanEntry(row rowScanner) (*BindingEntry, error) {
	var (
		entry     BindingEntry
		homeLink  sql.NullString
		createdAt string
		updatedAt string
	)

	if err := row.Scan(
		&entry.UniqueID,
		&entry.Host,
		&entry.Title,
		&homeLink,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if homeLink.Valid {
		entry.HomeLink = homeLink.String
	}

	var err error
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &entry, nil
}

// nullableString converts an empty string to a SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueConstraintError reports whether err is a SQLite unique
// constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
