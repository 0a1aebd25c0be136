package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/eventcollector/internal/events"
	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// ErrProcessingAborted is returned when a retryable result stopped a batch.
var ErrProcessingAborted = errors.New("processing aborted")

// Processor delivers batches of events in the order given and records each
// result.
type Processor struct {
	store     store.Store
	group     *model.Group
	exec      Executor
	publisher events.Publisher
	logger    *slog.Logger
	plog      *ProcessingLog
	run       *Run
}

// ExecuteEvents delivers evs in order and returns how many were executed
// before a retryable result stopped the batch. With updatePointers the
// group's resumption pointers are written together with every result.
//
// The events in evs are not modified.
func (p *Processor) ExecuteEvents(ctx context.Context, evs []*model.Event, updatePointers bool) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}
	p.prepareTokens(ctx, evs)

	executed := 0
	for _, e := range evs {
		t := p.group.TargetOf(e.OriginID)
		if t == nil {
			return executed, &model.ConfigError{Owner: "group " + p.group.Name, Msg: fmt.Sprintf("no target for origin %d of %s", e.OriginID, e.ShortDescription())}
		}

		res := p.exec.Execute(ctx, t, e)
		at := p.run.now()
		next, upd, err := e.ApplyResult(res, at)
		if err != nil {
			return executed, fmt.Errorf("apply result to %s: %w", e.ShortDescription(), err)
		}

		if updatePointers {
			ptr := p.group.NextPointers(e.ID, res.ShouldAbortProcessing())
			if err := p.store.UpdateResultAndGroupPointers(ctx, upd, ptr); err != nil {
				return executed, fmt.Errorf("persist result of %s: %w", e.ShortDescription(), err)
			}
			p.group.SetPointers(ptr, at)
		} else if err := p.store.UpdateResult(ctx, upd); err != nil {
			return executed, fmt.Errorf("persist result of %s: %w", e.ShortDescription(), err)
		}

		origin := p.originName(e.OriginID)
		p.plog.Record(ctx, next, origin)
		events.Notify(ctx, p.publisher, p.logger, events.TopicEventProcessed, events.EventProcessed{
			RunID:          p.run.ID,
			Group:          p.group.Name,
			EventID:        next.ID,
			Identification: next.Identification,
			Origin:         origin,
			State:          next.State,
			Info:           next.ProcessingInfo,
			HTTPStatus:     res.HTTPStatus,
			Replay:         !updatePointers,
		})

		if res.ShouldAbortProcessing() {
			p.logger.Warn("processing aborted", "event", next.ShortDescription(), "info", res.Info, "executed", executed)
			return executed, fmt.Errorf("%w at %s after %d events: %s", ErrProcessingAborted, next.ShortDescription(), executed, res.Info)
		}
		executed++
	}
	return executed, nil
}

// prepareTokens requests the token of every target the batch touches, once
// per target. A failure is only logged; Execute reports it per event.
func (p *Processor) prepareTokens(ctx context.Context, evs []*model.Event) {
	seen := make(map[int64]bool)
	for _, e := range evs {
		t := p.group.TargetOf(e.OriginID)
		if t == nil || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if err := p.exec.PrepareToken(ctx, t); err != nil {
			p.logger.Error("token request failed", "target", t.Name, "err", err)
		}
	}
}

func (p *Processor) originName(id int64) string {
	if o := p.group.Origin(id); o != nil {
		return o.Name
	}
	return fmt.Sprintf("origin-%d", id)
}
