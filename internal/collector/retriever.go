package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/eventcollector/internal/events"
	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/queue"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// Retriever moves queued payloads of an origin into the store, one message
// per unit of work.
type Retriever struct {
	store     store.Store
	queues    queue.Opener
	publisher events.Publisher
	logger    *slog.Logger
	run       *Run
}

// RetrieveEvents drains the origin's queue and returns the number of events
// stored. Malformed payloads are logged and removed from the queue. A store
// failure leaves the current message in the queue and stops the origin.
func (r *Retriever) RetrieveEvents(ctx context.Context, origin *model.Origin) (int, error) {
	logger := r.logger.With("origin", origin.Name)

	q, err := r.queues.Open(ctx, origin)
	if err != nil {
		return 0, fmt.Errorf("open queue of origin %s: %w", origin.Name, err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			logger.Warn("closing queue failed", "err", err)
		}
	}()

	// Events drained from one origin in one pass share a transaction id.
	transactionID := r.run.now().UnixMilli()

	count := 0
	for {
		payload, ok, err := q.FetchNext(ctx)
		if err != nil {
			return count, fmt.Errorf("fetch from origin %s: %w", origin.Name, err)
		}
		if !ok {
			break
		}

		ev, err := model.ParseEvent(origin.ID, payload, transactionID, r.run.Operations, r.run.now())
		if err != nil {
			logger.Error("discarding malformed event", "err", err, "source", payload)
			if err := q.Confirm(ctx); err != nil {
				return count, fmt.Errorf("confirm discarded payload of origin %s: %w", origin.Name, err)
			}
			continue
		}

		id, err := r.store.InsertEvent(ctx, ev)
		if err != nil {
			if abortErr := q.Abort(ctx); abortErr != nil {
				logger.Error("rolling back dequeue failed", "err", abortErr)
			}
			return count, fmt.Errorf("persist event of origin %s: %w", origin.Name, err)
		}
		ev.ID = id

		if err := q.Confirm(ctx); err != nil {
			return count, fmt.Errorf("confirm %s: %w", ev.ShortDescription(), err)
		}
		count++
		logger.Debug("event retrieved", "event", ev.ShortDescription())
		events.Notify(ctx, r.publisher, logger, events.TopicEventRetrieved, events.EventRetrieved{
			RunID:  r.run.ID,
			Origin: origin.Name,
			Event:  ev,
		})
	}

	logger.Info("events retrieved", "count", count, "transaction_id", transactionID)
	return count, nil
}
