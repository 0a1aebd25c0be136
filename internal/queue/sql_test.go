package queue

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

const dequeueCommand = "SELECT dequeue_event($1)"

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestSQLQueue_FetchConfirm(t *testing.T) {
	db, mock := newMockDB(t)
	q := NewSQLQueue(db, dequeueCommand, "collector")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dequeue_event").WithArgs("collector").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(`{"eventData":{}}`))
	mock.ExpectCommit()

	payload, ok, err := q.FetchNext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || payload != `{"eventData":{}}` {
		t.Fatalf("got (%q, %v)", payload, ok)
	}
	if err := q.Confirm(ctx); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
}

func TestSQLQueue_Empty(t *testing.T) {
	for _, tc := range []struct {
		name string
		rows *sqlmock.Rows
	}{
		{"NullPayload", sqlmock.NewRows([]string{"payload"}).AddRow(nil)},
		{"NoRow", sqlmock.NewRows([]string{"payload"})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			q := NewSQLQueue(db, dequeueCommand, "collector")

			mock.ExpectBegin()
			mock.ExpectQuery("SELECT dequeue_event").WillReturnRows(tc.rows)
			mock.ExpectRollback()

			_, ok, err := q.FetchNext(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok {
				t.Fatal("expected empty queue")
			}
			// Nothing is open, so Confirm touches nothing.
			if err := q.Confirm(context.Background()); err != nil {
				t.Fatalf("Confirm: %v", err)
			}
		})
	}
}

func TestSQLQueue_AbortLeavesMessage(t *testing.T) {
	db, mock := newMockDB(t)
	q := NewSQLQueue(db, dequeueCommand, "collector")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dequeue_event").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("p1"))
	mock.ExpectRollback()

	if _, _, err := q.FetchNext(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
}

func TestSQLQueue_FetchWithoutConfirm(t *testing.T) {
	db, mock := newMockDB(t)
	q := NewSQLQueue(db, dequeueCommand, "collector")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dequeue_event").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("p1"))
	mock.ExpectRollback()

	if _, _, err := q.FetchNext(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := q.FetchNext(ctx); err == nil {
		t.Fatal("expected error fetching with an open unit of work")
	}
	if err := q.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
}

func TestSQLQueue_CloseRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	q := NewSQLQueue(db, dequeueCommand, "collector")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dequeue_event").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("p1"))
	mock.ExpectRollback()
	mock.ExpectClose()

	if _, _, err := q.FetchNext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestValidateSQL(t *testing.T) {
	for _, tc := range []struct {
		name    string
		cfg     model.QueueConfig
		wantErr bool
	}{
		{"MySQL", model.QueueConfig{Driver: DriverMySQL, DSN: "user:pw@tcp(db:3306)/queues?parseTime=true"}, false},
		{"MySQLBadDSN", model.QueueConfig{Driver: DriverMySQL, DSN: "user:pw@tcp(db:3306"}, true},
		{"Postgres", model.QueueConfig{Driver: DriverPostgres, DSN: "postgres://user:pw@db:5432/queues?sslmode=disable"}, false},
		{"PostgresBadScheme", model.QueueConfig{Driver: DriverPostgres, DSN: "mysql://db/queues"}, true},
		{"UnknownDriver", model.QueueConfig{Driver: "oracle", DSN: "x"}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSQL(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateSQL() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDefaultOpener_UnknownKind(t *testing.T) {
	_, err := DefaultOpener{}.Open(context.Background(), &model.Origin{Name: "x", Queue: model.QueueConfig{Kind: "kafka"}})
	if err == nil {
		t.Fatal("expected error for unknown queue kind")
	}
}
