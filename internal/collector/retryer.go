package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/eventcollector/internal/events"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// RetryStats counts what one retry pass did.
type RetryStats struct {
	InitialID   int64
	Elements    int
	Obsoleted   int
	Reprocessed int
}

// Retryer reconsiders the error events of the group's retry window.
type Retryer struct {
	group     *GroupService
	processor *Processor
	publisher events.Publisher
	logger    *slog.Logger
	run       *Run
}

// Retry marks error events superseded by a later success of the same
// element obsolete, then replays the remaining error events without moving
// the group's pointers.
func (r *Retryer) Retry(ctx context.Context) (RetryStats, error) {
	var stats RetryStats
	g := r.group.Group()

	initialID, err := r.group.InitialErrorID(ctx)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Info("no events to retry", "window", g.RetryWindow)
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("initial error id: %w", err)
	}
	stats.InitialID = initialID

	elements, err := r.group.ErrorIDsByElement(ctx, initialID)
	if err != nil {
		return stats, fmt.Errorf("error ids by element: %w", err)
	}
	stats.Elements = len(elements)
	r.logger.Info("analyzing retry window", "window", g.RetryWindow, "initial_id", initialID, "elements", len(elements))

	for _, el := range elements {
		okID, found, err := r.group.FirstSuccessAfter(ctx, el.EventID, el.Identification, el.OriginID)
		if err != nil {
			return stats, fmt.Errorf("first success for %s: %w", el.Identification, err)
		}
		if !found {
			continue
		}
		n, err := r.group.MarkObsoleteRange(ctx, el.Identification, el.EventID, okID, el.OriginID)
		if err != nil {
			return stats, fmt.Errorf("mark %s obsolete: %w", el.Identification, err)
		}
		stats.Obsoleted += n
		events.Notify(ctx, r.publisher, r.logger, events.TopicEventObsoleted, events.EventObsoleted{
			RunID:          r.run.ID,
			Group:          g.Name,
			Identification: el.Identification,
			OriginID:       el.OriginID,
			StartID:        el.EventID,
			SuccessID:      okID,
			Count:          n,
		})
	}
	r.logger.Info("obsolete events marked", "count", stats.Obsoleted)

	remaining, err := r.group.ReprocessableEvents(ctx, initialID)
	if err != nil {
		return stats, err
	}
	r.logger.Info("reprocessing error events", "count", len(remaining))

	n, err := r.processor.ExecuteEvents(ctx, remaining, false)
	stats.Reprocessed = n
	if err != nil {
		return stats, err
	}
	r.logger.Info("error events reprocessed", "count", n)
	return stats, nil
}
