package model

import (
	"sort"
	"time"
)

// QueueKind selects the origin queue implementation.
type QueueKind string

const (
	QueueSQL       QueueKind = "sql"
	QueueJetStream QueueKind = "jetstream"
)

// QueueConfig holds the connectivity parameters of an origin queue.
type QueueConfig struct {
	Kind     QueueKind
	Consumer string

	// sql queues
	Driver  string
	DSN     string
	Command string

	// jetstream queues
	NATSURL   string
	Stream    string
	FetchWait time.Duration
}

// Origin is one external source of events.
type Origin struct {
	ID         int64
	Name       string
	GroupOrder int
	TargetID   int64
	Queue      QueueConfig
}

// Target is a REST endpoint events are delivered to.
type Target struct {
	ID          int64
	Name        string
	EndpointURL string
	TokenURL    string
	User        string
	Password    string
	Timeout     time.Duration
}

// GroupPointers is the resumption state of a group. At most one of the two
// ids is non-zero.
type GroupPointers struct {
	GroupID             int64
	RetryableEventID    int64
	LastExecutedEventID int64
}

// Group is the unit of ordered, resumable processing.
type Group struct {
	ID                  int64
	Name                string
	RetryableEventID    int64
	LastExecutedEventID int64
	RetryWindow         time.Duration
	UpdatedAt           time.Time

	origins     []*Origin
	originsByID map[int64]*Origin
	targets     map[int64]*Target
	sorted      bool
}

// NewGroup creates a group without origins.
func NewGroup(id int64, name string, retryableID, lastExecutedID int64, window time.Duration, updatedAt time.Time) *Group {
	return &Group{
		ID:                  id,
		Name:                name,
		RetryableEventID:    retryableID,
		LastExecutedEventID: lastExecutedID,
		RetryWindow:         window,
		UpdatedAt:           updatedAt,
		originsByID:         make(map[int64]*Origin),
		targets:             make(map[int64]*Target),
	}
}

// AddTarget registers a target referenced by the group's origins.
func (g *Group) AddTarget(t *Target) {
	g.targets[t.ID] = t
}

// AddOrigin appends an origin to the group.
func (g *Group) AddOrigin(o *Origin) {
	g.origins = append(g.origins, o)
	g.originsByID[o.ID] = o
	g.sorted = false
}

// Origins returns the origins ordered by GroupOrder, ascending.
func (g *Group) Origins() []*Origin {
	if !g.sorted {
		sort.SliceStable(g.origins, func(i, j int) bool {
			return g.origins[i].GroupOrder < g.origins[j].GroupOrder
		})
		g.sorted = true
	}
	return g.origins
}

// OriginIDs returns the ids of Origins() in the same order.
func (g *Group) OriginIDs() []int64 {
	origins := g.Origins()
	ids := make([]int64, len(origins))
	for i, o := range origins {
		ids[i] = o.ID
	}
	return ids
}

// Origin returns the origin with the given id, or nil.
func (g *Group) Origin(id int64) *Origin {
	return g.originsByID[id]
}

// Target returns the target with the given id, or nil.
func (g *Group) Target(id int64) *Target {
	return g.targets[id]
}

// TargetOf returns the target events of the given origin are delivered to.
func (g *Group) TargetOf(originID int64) *Target {
	o := g.originsByID[originID]
	if o == nil {
		return nil
	}
	return g.targets[o.TargetID]
}

// Pointers returns the current resumption state.
func (g *Group) Pointers() GroupPointers {
	return GroupPointers{GroupID: g.ID, RetryableEventID: g.RetryableEventID, LastExecutedEventID: g.LastExecutedEventID}
}

// NextPointers computes the resumption state after eventID was executed.
// An aborting result makes eventID the retry point; anything else marks it
// as the last executed event.
func (g *Group) NextPointers(eventID int64, abort bool) GroupPointers {
	if abort {
		return GroupPointers{GroupID: g.ID, RetryableEventID: eventID}
	}
	return GroupPointers{GroupID: g.ID, LastExecutedEventID: eventID}
}

// SetPointers replaces the resumption state with one already persisted.
func (g *Group) SetPointers(p GroupPointers, at time.Time) {
	g.RetryableEventID = p.RetryableEventID
	g.LastExecutedEventID = p.LastExecutedEventID
	g.UpdatedAt = at
}
