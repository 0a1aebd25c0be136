package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

var now = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func testGroup() *model.Group {
	g := model.NewGroup(1, "billing", 0, 0, time.Hour, now)
	g.AddOrigin(&model.Origin{ID: 10, Name: "lines", GroupOrder: 1})
	g.AddOrigin(&model.Origin{ID: 11, Name: "accounts", GroupOrder: 2})
	return g
}

func TestExportJSONL_Empty(t *testing.T) {
	ms := &mockStore{}
	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), ms, testGroup(), nil, now.Add(-time.Hour), now, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.Group != "billing" || h.EventCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if !h.Since.Equal(now.Add(-time.Hour)) {
		t.Fatalf("header since = %v", h.Since)
	}
}

func TestExportJSONL_Events(t *testing.T) {
	ms := &mockStore{events: []*model.Event{
		{ID: 3, OriginID: 10, Identification: "old", State: model.StateOK, UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: 4, OriginID: 10, Identification: "A", State: model.StateError, ProcessingInfo: "<bad>", UpdatedAt: now.Add(-time.Minute)},
		{ID: 7, OriginID: 11, Identification: "B", State: model.StateOK, UpdatedAt: now},
	}}

	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), ms, testGroup(), nil, now.Add(-time.Hour), now, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}

	if len(ms.filters) != 1 {
		t.Fatalf("expected one query, got %d", len(ms.filters))
	}
	f := ms.filters[0]
	if len(f.OriginIDs) != 2 || f.OriginIDs[0] != 10 || f.OriginIDs[1] != 11 {
		t.Fatalf("origin filter = %v", f.OriginIDs)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.EventCount != 2 {
		t.Fatalf("header event_count = %d", h.EventCount)
	}

	var rec struct {
		Type string      `json:"type"`
		Data model.Event `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("unmarshal line 1: %v", err)
	}
	if rec.Type != "event" || rec.Data.ID != 4 || rec.Data.State != model.StateError {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.Contains(lines[1], `"processing_info":"<bad>"`) {
		t.Fatalf("html must not be escaped: %s", lines[1])
	}
}

func TestExportJSONL_QueryError(t *testing.T) {
	ms := &mockStore{err: errBoom}
	var buf bytes.Buffer
	_, err := ExportJSONL(context.Background(), ms, testGroup(), nil, now, now, &buf)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written on error, got %q", buf.String())
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
