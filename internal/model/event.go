package model

import (
	"fmt"
	"strconv"
	"time"
)

// State is the processing state of an event.
type State string

const (
	StatePending   State = "pending"
	StateRetryable State = "retryable"
	StateError     State = "error"
	StateOK        State = "ok"
	StateWarning   State = "warning"
	StateDiscarded State = "discarded"
	StateObsolete  State = "obsolet"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsValid checks whether the state is a known value.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateRetryable, StateError, StateOK, StateWarning, StateDiscarded, StateObsolete:
		return true
	}
	return false
}

// IsFinal reports whether no further transition may leave the state.
func (s State) IsFinal() bool {
	switch s {
	case StateOK, StateWarning, StateDiscarded, StateObsolete:
		return true
	}
	return false
}

// IsSuccess reports whether the state counts as a successful delivery when
// deciding whether older failures for the same element are superseded.
func (s State) IsSuccess() bool {
	return s == StateOK || s == StateWarning
}

// CanTransition reports whether an event in state s may move to state to.
//
// Delivery results may be applied to pending, retryable and error events
// (the latter only through a replay). Obsolescence applies to error events
// only. Nothing ever re-enters pending.
func (s State) CanTransition(to State) bool {
	if to == StatePending || !to.IsValid() {
		return false
	}
	if to == StateObsolete {
		return s == StateError
	}
	switch s {
	case StatePending, StateRetryable, StateError:
		return true
	}
	return false
}

// Event is one change message retrieved from an origin queue.
type Event struct {
	ID             int64     `json:"id"`
	OriginID       int64     `json:"origin_id"`
	Operation      Operation `json:"operation"`
	Identification string    `json:"identification"`
	Type           string    `json:"type"`
	TransactionID  int64     `json:"transaction_id"`
	TrxID          string    `json:"trx_id"`
	PublishedAt    time.Time `json:"published_at"`
	DequeuedAt     time.Time `json:"dequeued_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	State          State     `json:"state"`
	ProcessingInfo string    `json:"processing_info,omitempty"`
	Source         string    `json:"source"`
}

// ShortDescription identifies the event in log and error messages.
func (e *Event) ShortDescription() string {
	return "<ID: " + strconv.FormatInt(e.ID, 10) +
		" - Identification: " + e.Identification +
		" - Type: " + e.Type +
		" - Operation: " + e.Operation.Name + ">"
}

// ResultUpdate is the persisted outcome of one delivery attempt.
type ResultUpdate struct {
	EventID   int64
	State     State
	Info      string
	UpdatedAt time.Time
}

// ApplyResult returns a copy of the event carrying the given result. The
// receiver is left untouched.
func (e *Event) ApplyResult(r ProcessingResult, at time.Time) (*Event, ResultUpdate, error) {
	to := r.State()
	if !e.State.CanTransition(to) {
		return nil, ResultUpdate{}, fmt.Errorf("event %d: invalid transition %s -> %s", e.ID, e.State, to)
	}
	next := *e
	next.State = to
	next.ProcessingInfo = r.Info
	next.UpdatedAt = at
	return &next, ResultUpdate{EventID: e.ID, State: to, Info: r.Info, UpdatedAt: at}, nil
}
