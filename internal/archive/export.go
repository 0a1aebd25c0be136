package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Group      string    `json:"group"`
	Since      time.Time `json:"since"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ExportJSONL writes the events of g updated at or after since as JSONL to
// w, ordered by id. The first line is a header record.
func ExportJSONL(ctx context.Context, s store.Store, g *model.Group, ops *model.Operations, since, now time.Time, w io.Writer) (int, error) {
	evs, err := s.QueryEvents(ctx, store.EventFilter{
		OriginIDs:    g.OriginIDs(),
		UpdatedSince: since,
	}, ops)
	if err != nil {
		return 0, fmt.Errorf("query events: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  now.UTC(),
		Group:      g.Name,
		Since:      since.UTC(),
		EventCount: len(evs),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	for _, e := range evs {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return 0, fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}
	return len(evs), nil
}
