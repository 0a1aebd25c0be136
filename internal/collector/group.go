package collector

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// GroupService answers the ordered and windowed event queries of a group.
type GroupService struct {
	store     store.Store
	group     *model.Group
	run       *Run
	maxEvents int
}

// NewGroupService creates a service for g. maxEvents caps ProcessableEvents;
// zero means no cap.
func NewGroupService(s store.Store, g *model.Group, run *Run, maxEvents int) *GroupService {
	return &GroupService{store: s, group: g, run: run, maxEvents: maxEvents}
}

// Group returns the group, including its current pointers.
func (gs *GroupService) Group() *model.Group { return gs.group }

// ProcessableEvents returns the events the next processing pass must deliver.
// After a retryable stop the batch restarts at the stuck event and includes
// the events queued behind it; otherwise it holds the pending events newer
// than the last executed one.
func (gs *GroupService) ProcessableEvents(ctx context.Context) ([]*model.Event, error) {
	f := store.EventFilter{
		OriginIDs: gs.group.OriginIDs(),
		Limit:     gs.maxEvents,
	}
	if gs.group.RetryableEventID > 0 {
		f.MinID = gs.group.RetryableEventID
		f.Inclusive = true
		f.States = []model.State{model.StatePending, model.StateRetryable}
	} else {
		f.MinID = gs.group.LastExecutedEventID
		f.States = []model.State{model.StatePending}
	}
	evs, err := gs.store.QueryEvents(ctx, f, gs.run.Operations)
	if err != nil {
		return nil, fmt.Errorf("query processable events: %w", err)
	}
	return evs, nil
}

// InitialErrorID returns the smallest error event id updated inside the
// retry window, or store.ErrNotFound.
func (gs *GroupService) InitialErrorID(ctx context.Context) (int64, error) {
	since := gs.run.now().Add(-gs.group.RetryWindow)
	return gs.store.MinErrorIDInWindow(ctx, since, gs.group.OriginIDs())
}

// ErrorIDsByElement returns the earliest error event at or after startID for
// every element, ordered by event id.
func (gs *GroupService) ErrorIDsByElement(ctx context.Context, startID int64) ([]store.ElementError, error) {
	return gs.store.MinErrorIDPerElement(ctx, startID, gs.group.OriginIDs())
}

// FirstSuccessAfter returns the first ok or warning event after startID for
// the element.
func (gs *GroupService) FirstSuccessAfter(ctx context.Context, startID int64, identification string, originID int64) (int64, bool, error) {
	return gs.store.MinSuccessIDAfter(ctx, startID, identification, originID)
}

// MarkObsoleteRange marks the element's error events in [startID, beforeID)
// obsolete and returns how many changed.
func (gs *GroupService) MarkObsoleteRange(ctx context.Context, identification string, startID, beforeID, originID int64) (int, error) {
	return gs.store.BulkMarkObsolete(ctx, identification, startID, beforeID, originID, gs.run.now())
}

// ReprocessableEvents returns the error events at or after initialID.
func (gs *GroupService) ReprocessableEvents(ctx context.Context, initialID int64) ([]*model.Event, error) {
	evs, err := gs.store.QueryEvents(ctx, store.EventFilter{
		MinID:     initialID,
		Inclusive: true,
		States:    []model.State{model.StateError},
		OriginIDs: gs.group.OriginIDs(),
	}, gs.run.Operations)
	if err != nil {
		return nil, fmt.Errorf("query reprocessable events: %w", err)
	}
	return evs, nil
}

// CountByState returns the number of the group's events in each state.
func (gs *GroupService) CountByState(ctx context.Context) (map[model.State]int, error) {
	return gs.store.CountEventsByState(ctx, gs.group.OriginIDs())
}
