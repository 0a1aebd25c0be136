package events

import (
	"context"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// Event topic constants
const (
	TopicEventRetrieved = "evc.event.retrieved"
	TopicEventProcessed = "evc.event.processed"
	TopicEventObsoleted = "evc.event.obsoleted"

	// TopicAll matches every lifecycle notification.
	TopicAll = "evc.>"
)

// Event types

type EventRetrieved struct {
	RunID  string       `json:"run_id"`
	Origin string       `json:"origin"`
	Event  *model.Event `json:"event"`
}

type EventProcessed struct {
	RunID          string      `json:"run_id"`
	Group          string      `json:"group"`
	EventID        int64       `json:"event_id"`
	Identification string      `json:"identification"`
	Origin         string      `json:"origin"`
	State          model.State `json:"state"`
	Info           string      `json:"info,omitempty"`
	HTTPStatus     int         `json:"http_status,omitempty"`
	Replay         bool        `json:"replay,omitempty"`
}

// EventObsoleted reports a range of error events superseded by a later success.
type EventObsoleted struct {
	RunID          string `json:"run_id"`
	Group          string `json:"group"`
	Identification string `json:"identification"`
	OriginID       int64  `json:"origin_id"`
	StartID        int64  `json:"start_id"`
	SuccessID      int64  `json:"success_id"`
	Count          int    `json:"count"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
