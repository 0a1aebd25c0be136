package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// Supported values of the db_driver origin property.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// SQLQueue dequeues payloads by calling a stored command inside a database
// transaction. The command takes the consumer name as its only argument and
// returns a single text column; NULL (or no row) means the queue is empty.
type SQLQueue struct {
	db       *sql.DB
	command  string
	consumer string
	tx       *sql.Tx
}

// ValidateSQL checks the driver and DSN of an SQL queue without connecting.
func ValidateSQL(cfg model.QueueConfig) error {
	switch cfg.Driver {
	case DriverMySQL:
		if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
			return fmt.Errorf("parse mysql dsn: %w", err)
		}
	case DriverPostgres:
		if _, err := pq.ParseURL(cfg.DSN); err != nil {
			return fmt.Errorf("parse postgres url: %w", err)
		}
	default:
		return fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	return nil
}

// OpenSQL connects to the queue database described by cfg.
func OpenSQL(ctx context.Context, cfg model.QueueConfig) (*SQLQueue, error) {
	if err := ValidateSQL(cfg); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	// One unit of work at a time.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping queue database: %w", err)
	}
	return NewSQLQueue(db, cfg.Command, cfg.Consumer), nil
}

// NewSQLQueue wraps an already opened database.
func NewSQLQueue(db *sql.DB, command, consumer string) *SQLQueue {
	return &SQLQueue{db: db, command: command, consumer: consumer}
}

func (q *SQLQueue) FetchNext(ctx context.Context) (string, bool, error) {
	if q.tx != nil {
		return "", false, errors.New("fetch next: previous message neither confirmed nor aborted")
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin dequeue: %w", err)
	}

	var payload sql.NullString
	err = tx.QueryRowContext(ctx, q.command, q.consumer).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !payload.Valid) {
		// Nothing was removed; end the empty unit of work.
		_ = tx.Rollback()
		return "", false, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return "", false, fmt.Errorf("dequeue: %w", err)
	}

	q.tx = tx
	return payload.String, true, nil
}

func (q *SQLQueue) Confirm(ctx context.Context) error {
	if q.tx == nil {
		return nil
	}
	tx := q.tx
	q.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dequeue: %w", err)
	}
	return nil
}

func (q *SQLQueue) Abort(ctx context.Context) error {
	if q.tx == nil {
		return nil
	}
	tx := q.tx
	q.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback dequeue: %w", err)
	}
	return nil
}

func (q *SQLQueue) Close() error {
	abortErr := q.Abort(context.Background())
	if err := q.db.Close(); err != nil {
		return fmt.Errorf("close queue database: %w", err)
	}
	return abortErr
}
