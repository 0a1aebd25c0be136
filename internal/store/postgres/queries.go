package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `id, origin_id, operation_id, transaction_id, identification, type,
	trx_id, published_at, dequeued_at, updated_at, state, processing_info, source`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryInsertEvent(ctx context.Context, db executor, e *model.Event) (int64, error) {
	state := e.State
	if state == "" {
		state = model.StatePending
	}
	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO events (
			origin_id, operation_id, transaction_id, identification, type,
			trx_id, published_at, dequeued_at, updated_at, state, processing_info, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		e.OriginID,
		e.Operation.ID,
		e.TransactionID,
		e.Identification,
		e.Type,
		e.TrxID,
		e.PublishedAt,
		e.DequeuedAt,
		e.UpdatedAt,
		string(state),
		nullString(e.ProcessingInfo),
		e.Source,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

func queryUpdateResult(ctx context.Context, db executor, upd model.ResultUpdate) error {
	res, err := db.ExecContext(ctx,
		`UPDATE events SET state = $1, processing_info = $2, updated_at = $3 WHERE id = $4`,
		string(upd.State), nullString(upd.Info), upd.UpdatedAt, upd.EventID,
	)
	if err != nil {
		return fmt.Errorf("update event %d: %w", upd.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event %d: %w", upd.EventID, err)
	}
	if n == 0 {
		return fmt.Errorf("update event %d: %w", upd.EventID, store.ErrNotFound)
	}
	return nil
}

func queryUpdateGroupPointers(ctx context.Context, db executor, p model.GroupPointers, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE collector_groups
		SET retryable_event_id = $1, last_executed_event_id = $2, updated_at = $3
		WHERE id = $4`,
		p.RetryableEventID, p.LastExecutedEventID, at, p.GroupID,
	)
	if err != nil {
		return fmt.Errorf("update group %d pointers: %w", p.GroupID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update group %d pointers: %w", p.GroupID, err)
	}
	if n == 0 {
		return fmt.Errorf("update group %d pointers: %w", p.GroupID, store.ErrNotFound)
	}
	return nil
}

func queryEvents(ctx context.Context, db executor, filter store.EventFilter, ops *model.Operations) ([]*model.Event, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Inclusive {
		whereClauses = append(whereClauses, "id >= "+nextArg())
	} else {
		whereClauses = append(whereClauses, "id > "+nextArg())
	}
	args = append(args, filter.MinID)

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, s := range filter.States {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "state IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.OriginIDs) > 0 {
		whereClauses = append(whereClauses, "origin_id = ANY("+nextArg()+")")
		args = append(args, pq.Array(filter.OriginIDs))
	}

	if !filter.UpdatedSince.IsZero() {
		whereClauses = append(whereClauses, "updated_at >= "+nextArg())
		args = append(args, filter.UpdatedSince)
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` +
		strings.Join(whereClauses, " AND ") + ` ORDER BY id ASC`
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, ops)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}

func queryCountEventsByState(ctx context.Context, db executor, originIDs []int64) (map[model.State]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM events WHERE origin_id = ANY($1) GROUP BY state`,
		pq.Array(originIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[model.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	return counts, nil
}

func queryMinErrorIDInWindow(ctx context.Context, db executor, since time.Time, originIDs []int64) (int64, error) {
	var id sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT MIN(id) FROM events
		WHERE state = $1 AND updated_at >= $2 AND origin_id = ANY($3)`,
		string(model.StateError), since, pq.Array(originIDs),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("min error id: %w", err)
	}
	if !id.Valid {
		return 0, store.ErrNotFound
	}
	return id.Int64, nil
}

// queryMinErrorIDPerElement returns the earliest error event at or after
// startID for every identification, ordered by event id. The origin returned
// is the origin of that earliest error.
func queryMinErrorIDPerElement(ctx context.Context, db executor, startID int64, originIDs []int64) ([]store.ElementError, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT identification, id, origin_id FROM (
			SELECT DISTINCT ON (identification) identification, id, origin_id
			FROM events
			WHERE state = $1 AND id >= $2 AND origin_id = ANY($3)
			ORDER BY identification, id
		) e ORDER BY id`,
		string(model.StateError), startID, pq.Array(originIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("query element errors: %w", err)
	}
	defer rows.Close()

	var out []store.ElementError
	for rows.Next() {
		var ee store.ElementError
		if err := rows.Scan(&ee.Identification, &ee.EventID, &ee.OriginID); err != nil {
			return nil, fmt.Errorf("scan element error: %w", err)
		}
		out = append(out, ee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query element errors: %w", err)
	}
	return out, nil
}

func queryMinSuccessIDAfter(ctx context.Context, db executor, startID int64, identification string, originID int64) (int64, bool, error) {
	var id sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT MIN(id) FROM events
		WHERE id > $1 AND identification = $2 AND origin_id = $3 AND state IN ($4, $5)`,
		startID, identification, originID, string(model.StateOK), string(model.StateWarning),
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("min success id: %w", err)
	}
	return id.Int64, id.Valid, nil
}

func queryBulkMarkObsolete(ctx context.Context, db executor, identification string, startID, beforeID, originID int64, at time.Time) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE events SET state = $1, updated_at = $2
		WHERE identification = $3 AND id >= $4 AND id < $5 AND origin_id = $6 AND state = $7`,
		string(model.StateObsolete), at, identification, startID, beforeID, originID, string(model.StateError),
	)
	if err != nil {
		return 0, fmt.Errorf("mark obsolete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark obsolete: %w", err)
	}
	return int(n), nil
}

type originRow struct {
	id, targetID int64
	name         string
	order        int
}

type targetRow struct {
	id   int64
	name string
}

func queryLoadGroup(ctx context.Context, db executor, name string) (*model.Group, error) {
	var (
		id, retryableID, lastExecutedID, windowSecs int64
		updatedAt                                   time.Time
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, retryable_event_id, last_executed_event_id, failed_events_retryable_seconds, updated_at
		FROM collector_groups WHERE name = $1`, name,
	).Scan(&id, &retryableID, &lastExecutedID, &windowSecs, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %q: %w", name, err)
	}
	g := model.NewGroup(id, name, retryableID, lastExecutedID, time.Duration(windowSecs)*time.Second, updatedAt)

	// Rows are drained before the property lookups; a transaction cannot
	// interleave queries on one connection.
	targets, err := queryGroupTargets(ctx, db, id)
	if err != nil {
		return nil, err
	}
	origins, err := queryGroupOrigins(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if len(origins) == 0 {
		return nil, &model.ConfigError{Owner: "group " + name, Msg: "no origins configured"}
	}

	for _, tr := range targets {
		props, err := queryProperties(ctx, db, "target", tr.id)
		if err != nil {
			return nil, err
		}
		t, err := model.TargetFromProperties(tr.id, tr.name, props)
		if err != nil {
			return nil, err
		}
		g.AddTarget(t)
	}
	for _, or := range origins {
		props, err := queryProperties(ctx, db, "origin", or.id)
		if err != nil {
			return nil, err
		}
		o, err := model.OriginFromProperties(or.id, or.name, or.order, or.targetID, props)
		if err != nil {
			return nil, err
		}
		g.AddOrigin(o)
	}
	return g, nil
}

func queryGroupTargets(ctx context.Context, db executor, groupID int64) ([]targetRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.name FROM targets t
		JOIN origins o ON o.target_id = t.id
		WHERE o.group_id = $1 ORDER BY t.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []targetRow
	for rows.Next() {
		var tr targetRow
		if err := rows.Scan(&tr.id, &tr.name); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	return out, nil
}

func queryGroupOrigins(ctx context.Context, db executor, groupID int64) ([]originRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, group_order, target_id FROM origins
		WHERE group_id = $1 ORDER BY group_order, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query origins: %w", err)
	}
	defer rows.Close()

	var out []originRow
	for rows.Next() {
		var or originRow
		if err := rows.Scan(&or.id, &or.name, &or.order, &or.targetID); err != nil {
			return nil, fmt.Errorf("scan origin: %w", err)
		}
		out = append(out, or)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query origins: %w", err)
	}
	return out, nil
}

func queryProperties(ctx context.Context, db executor, ownerType string, ownerID int64) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT property, value FROM collector_config WHERE owner_type = $1 AND owner_id = $2`,
		ownerType, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s %d properties: %w", ownerType, ownerID, err)
	}
	defer rows.Close()

	props, err := scanProperties(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s %d properties: %w", ownerType, ownerID, err)
	}
	return props, nil
}

func queryLoadOperations(ctx context.Context, db executor) (*model.Operations, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, operation_type FROM operations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var list []model.Operation
	for rows.Next() {
		var (
			op   model.Operation
			kind string
		)
		if err := rows.Scan(&op.ID, &op.Name, &kind); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.Kind = model.OperationKind(kind)
		list = append(list, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	return model.NewOperations(list)
}
