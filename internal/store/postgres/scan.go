package postgres

import (
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable, ops *model.Operations) (*model.Event, error) {
	var e model.Event
	var (
		operationID int64
		state       string
		info        sql.NullString
	)

	err := row.Scan(
		&e.ID,
		&e.OriginID,
		&operationID,
		&e.TransactionID,
		&e.Identification,
		&e.Type,
		&e.TrxID,
		&e.PublishedAt,
		&e.DequeuedAt,
		&e.UpdatedAt,
		&state,
		&info,
		&e.Source,
	)
	if err != nil {
		return nil, err
	}

	op, err := ops.ByID(operationID)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", e.ID, err)
	}
	e.Operation = op
	e.State = model.State(state)
	e.ProcessingInfo = info.String

	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows, ops *model.Operations) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows, ops)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// scanProperties collects property/value rows into a map.
func scanProperties(rows *sql.Rows) (map[string]string, error) {
	props := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		props[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return props, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
