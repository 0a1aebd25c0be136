package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	writes int
	last   []byte
	err    error
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes++
	d.last = append([]byte(nil), data...)
	return d.err
}

func testExporter(ms *mockStore, dests ...Destination) *Exporter {
	x := NewExporter(ms, dests, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	x.clock = func() time.Time { return now }
	return x
}

func TestExporter_MultipleDestinations(t *testing.T) {
	ms := &mockStore{events: []*model.Event{{ID: 1, OriginID: 10, UpdatedAt: now}}}
	d1 := &mockDestination{name: "one"}
	d2 := &mockDestination{name: "two"}

	if err := testExporter(ms, d1, d2).Export(context.Background(), testGroup(), nil); err != nil {
		t.Fatalf("export: %v", err)
	}
	if d1.writes != 1 || d2.writes != 1 {
		t.Fatalf("writes = %d, %d; want 1, 1", d1.writes, d2.writes)
	}
	if string(d1.last) != string(d2.last) {
		t.Fatal("destinations received different payloads")
	}
	if lines := nonEmptyLines(string(d1.last)); len(lines) != 2 {
		t.Fatalf("expected header + 1 event, got %d lines", len(lines))
	}
	if got := ms.filters[0].UpdatedSince; !got.Equal(now.Add(-time.Hour)) {
		t.Fatalf("UpdatedSince = %v", got)
	}
}

func TestExporter_FailingDestination(t *testing.T) {
	ms := &mockStore{}
	bad := &mockDestination{name: "bad", err: errBoom}
	good := &mockDestination{name: "good"}

	err := testExporter(ms, bad, good).Export(context.Background(), testGroup(), nil)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if good.writes != 1 {
		t.Fatal("a failing destination must not stop the others")
	}
}

func TestExporter_NoDestinations(t *testing.T) {
	if err := testExporter(&mockStore{}).Export(context.Background(), testGroup(), nil); err == nil {
		t.Fatal("expected error without destinations")
	}
}
