// Package repository implements the Persistence Layer: a keyed blob store
// on SQLite, PostgreSQL or process memory.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

// SQLRepository stores blobs in the kv_blobs table through database/sql.
// The same statements serve SQLite and PostgreSQL.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool (sqlite keeps its single connection)
	if cfg.MaxOpenConns > 0 && cfg.Driver == "postgres" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 && cfg.Driver == "postgres" {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves the blob stored under key.
func (r *SQLRepository) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidInput)
	}

	query := `SELECT blob_value FROM kv_blobs WHERE blob_key = ?`

	var value string
	err := r.db.QueryRowContext(ctx, r.rebind(query), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}

	return []byte(value), nil
}

const upsertBlob = `
	INSERT INTO kv_blobs (blob_key, blob_value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(blob_key) DO UPDATE SET
		blob_value = excluded.blob_value,
		updated_at = excluded.updated_at
`

// Save stores the blob under key, replacing any previous value.
func (r *SQLRepository) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, r.rebind(upsertBlob), key, string(value), time.Now().UTC())
	return err
}

// SaveAll replaces every blob in one transaction.
func (r *SQLRepository) SaveAll(ctx context.Context, blobs map[string][]byte) (err error) {
	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		if k == "" {
			return fmt.Errorf("%w: key is required", ErrInvalidInput)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, r.rebind(upsertBlob))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, k := range keys {
		if _, err = stmt.ExecContext(ctx, k, string(blobs[k]), now); err != nil {
			return fmt.Errorf("failed to save %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Delete removes the blob stored under key.
func (r *SQLRepository) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}

	query := `DELETE FROM kv_blobs WHERE blob_key = ?`

	_, err := r.db.ExecContext(ctx, r.rebind(query), key)
	return err
}

// Keys lists the stored blob keys.
func (r *SQLRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT blob_key FROM kv_blobs ORDER BY blob_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, part := range strings.Split(query, "?") {
		if n > 0 {
			b.WriteString("$" + strconv.Itoa(n))
		}
		b.WriteString(part)
		n++
	}
	return b.String()
}
