// Package archive exports the event audit trail of a group as JSONL and
// writes it to S3 or git destinations.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// Destination is where an export is written (S3, git, etc.).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Exporter exports one group's recent events to a set of destinations.
type Exporter struct {
	store        store.Store
	destinations []Destination
	window       time.Duration
	clock        func() time.Time
	logger       *slog.Logger
}

// NewExporter creates an exporter covering events updated within window.
func NewExporter(s store.Store, destinations []Destination, window time.Duration, logger *slog.Logger) *Exporter {
	return &Exporter{
		store:        s,
		destinations: destinations,
		window:       window,
		clock:        time.Now,
		logger:       logger,
	}
}

// Export writes the audit trail of g to every destination. A failing
// destination does not stop the others; their errors are joined.
func (x *Exporter) Export(ctx context.Context, g *model.Group, ops *model.Operations) error {
	if len(x.destinations) == 0 {
		return errors.New("no export destination configured")
	}
	now := x.clock()

	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, x.store, g, ops, now.Add(-x.window), now, &buf)
	if err != nil {
		return fmt.Errorf("export group %s: %w", g.Name, err)
	}
	data := buf.Bytes()

	var errs []error
	for _, dest := range x.destinations {
		if err := dest.Write(ctx, data); err != nil {
			x.logger.Error("export destination write failed", "destination", dest.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
			continue
		}
	}

	x.logger.Info("export completed", "group", g.Name, "events", n, "destinations", len(x.destinations), "bytes", len(data))
	return errors.Join(errs...)
}
