package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// EventFilter selects events by id range, state and origin. Results are
// always ordered by id ascending.
type EventFilter struct {
	MinID        int64
	Inclusive    bool // id >= MinID instead of id > MinID
	States       []model.State
	OriginIDs    []int64
	UpdatedSince time.Time // zero = no lower bound on updated_at
	Limit        int       // 0 = no limit
}

// ElementError is the earliest error event of one business element.
type ElementError struct {
	Identification string
	EventID        int64
	OriginID       int64
}

// Store defines the persistence interface for events and collector groups.
type Store interface {
	// Events
	InsertEvent(ctx context.Context, event *model.Event) (int64, error)
	UpdateResult(ctx context.Context, upd model.ResultUpdate) error
	UpdateResultAndGroupPointers(ctx context.Context, upd model.ResultUpdate, ptr model.GroupPointers) error
	QueryEvents(ctx context.Context, filter EventFilter, ops *model.Operations) ([]*model.Event, error)
	CountEventsByState(ctx context.Context, originIDs []int64) (map[model.State]int, error)

	// Retry window
	MinErrorIDInWindow(ctx context.Context, since time.Time, originIDs []int64) (int64, error) // ErrNotFound when empty
	// MinErrorIDPerElement returns one ElementError per identification.
	MinErrorIDPerElement(ctx context.Context, startID int64, originIDs []int64) ([]ElementError, error)
	MinSuccessIDAfter(ctx context.Context, startID int64, identification string, originID int64) (int64, bool, error)
	BulkMarkObsolete(ctx context.Context, identification string, startID, beforeID, originID int64, at time.Time) (int, error)

	// Configuration
	LoadGroup(ctx context.Context, name string) (*model.Group, error)
	LoadOperations(ctx context.Context) (*model.Operations, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
