// Package queue implements the origin queues events are retrieved from.
//
// Every queue hands out one message at a time inside its own unit of work:
// the message is removed from the origin only when Confirm is called, and is
// left in place by Abort.
package queue

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// Queue is a transactional source of raw event payloads bound to one origin.
type Queue interface {
	// FetchNext dequeues the next payload without committing the removal.
	// ok is false when the queue is empty.
	FetchNext(ctx context.Context) (payload string, ok bool, err error)
	// Confirm commits the removal of the payload last returned by FetchNext.
	Confirm(ctx context.Context) error
	// Abort leaves the payload last returned by FetchNext in the queue.
	Abort(ctx context.Context) error
	// Close aborts any open unit of work and releases the connection.
	Close() error
}

// Opener opens the queue of an origin for one retrieval run.
type Opener interface {
	Open(ctx context.Context, origin *model.Origin) (Queue, error)
}

// DefaultOpener opens SQL or JetStream queues depending on the origin's
// queue kind.
type DefaultOpener struct{}

func (DefaultOpener) Open(ctx context.Context, origin *model.Origin) (Queue, error) {
	switch origin.Queue.Kind {
	case model.QueueSQL:
		return OpenSQL(ctx, origin.Queue)
	case model.QueueJetStream:
		return OpenJetStream(ctx, origin.Queue)
	default:
		return nil, &model.ConfigError{Owner: "origin " + origin.Name, Msg: fmt.Sprintf("unknown queue kind %q", origin.Queue.Kind)}
	}
}
