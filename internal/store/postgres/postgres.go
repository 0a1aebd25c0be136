// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Runs are single-writer; a small pool is enough.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InsertEvent(ctx context.Context, event *model.Event) (int64, error) {
	return queryInsertEvent(ctx, s.db, event)
}

func (s *PostgresStore) UpdateResult(ctx context.Context, upd model.ResultUpdate) error {
	return queryUpdateResult(ctx, s.db, upd)
}

// UpdateResultAndGroupPointers writes the event result and the group
// pointers in one transaction.
func (s *PostgresStore) UpdateResultAndGroupPointers(ctx context.Context, upd model.ResultUpdate, ptr model.GroupPointers) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.UpdateResultAndGroupPointers(ctx, upd, ptr)
	})
}

func (s *PostgresStore) QueryEvents(ctx context.Context, filter store.EventFilter, ops *model.Operations) ([]*model.Event, error) {
	return queryEvents(ctx, s.db, filter, ops)
}

func (s *PostgresStore) CountEventsByState(ctx context.Context, originIDs []int64) (map[model.State]int, error) {
	return queryCountEventsByState(ctx, s.db, originIDs)
}

func (s *PostgresStore) MinErrorIDInWindow(ctx context.Context, since time.Time, originIDs []int64) (int64, error) {
	return queryMinErrorIDInWindow(ctx, s.db, since, originIDs)
}

func (s *PostgresStore) MinErrorIDPerElement(ctx context.Context, startID int64, originIDs []int64) ([]store.ElementError, error) {
	return queryMinErrorIDPerElement(ctx, s.db, startID, originIDs)
}

func (s *PostgresStore) MinSuccessIDAfter(ctx context.Context, startID int64, identification string, originID int64) (int64, bool, error) {
	return queryMinSuccessIDAfter(ctx, s.db, startID, identification, originID)
}

func (s *PostgresStore) BulkMarkObsolete(ctx context.Context, identification string, startID, beforeID, originID int64, at time.Time) (int, error) {
	return queryBulkMarkObsolete(ctx, s.db, identification, startID, beforeID, originID, at)
}

func (s *PostgresStore) LoadGroup(ctx context.Context, name string) (*model.Group, error) {
	return queryLoadGroup(ctx, s.db, name)
}

func (s *PostgresStore) LoadOperations(ctx context.Context) (*model.Operations, error) {
	return queryLoadOperations(ctx, s.db)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) InsertEvent(ctx context.Context, event *model.Event) (int64, error) {
	return queryInsertEvent(ctx, s.tx, event)
}

func (s *txStore) UpdateResult(ctx context.Context, upd model.ResultUpdate) error {
	return queryUpdateResult(ctx, s.tx, upd)
}

func (s *txStore) UpdateResultAndGroupPointers(ctx context.Context, upd model.ResultUpdate, ptr model.GroupPointers) error {
	if err := queryUpdateResult(ctx, s.tx, upd); err != nil {
		return err
	}
	return queryUpdateGroupPointers(ctx, s.tx, ptr, upd.UpdatedAt)
}

func (s *txStore) QueryEvents(ctx context.Context, filter store.EventFilter, ops *model.Operations) ([]*model.Event, error) {
	return queryEvents(ctx, s.tx, filter, ops)
}

func (s *txStore) CountEventsByState(ctx context.Context, originIDs []int64) (map[model.State]int, error) {
	return queryCountEventsByState(ctx, s.tx, originIDs)
}

func (s *txStore) MinErrorIDInWindow(ctx context.Context, since time.Time, originIDs []int64) (int64, error) {
	return queryMinErrorIDInWindow(ctx, s.tx, since, originIDs)
}

func (s *txStore) MinErrorIDPerElement(ctx context.Context, startID int64, originIDs []int64) ([]store.ElementError, error) {
	return queryMinErrorIDPerElement(ctx, s.tx, startID, originIDs)
}

func (s *txStore) MinSuccessIDAfter(ctx context.Context, startID int64, identification string, originID int64) (int64, bool, error) {
	return queryMinSuccessIDAfter(ctx, s.tx, startID, identification, originID)
}

func (s *txStore) BulkMarkObsolete(ctx context.Context, identification string, startID, beforeID, originID int64, at time.Time) (int, error) {
	return queryBulkMarkObsolete(ctx, s.tx, identification, startID, beforeID, originID, at)
}

func (s *txStore) LoadGroup(ctx context.Context, name string) (*model.Group, error) {
	return queryLoadGroup(ctx, s.tx, name)
}

func (s *txStore) LoadOperations(ctx context.Context) (*model.Operations, error) {
	return queryLoadOperations(ctx, s.tx)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
