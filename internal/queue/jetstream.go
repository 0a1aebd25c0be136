package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// JetStreamQueue pulls payloads one at a time from a durable JetStream
// consumer. A message is acknowledged on Confirm and negatively acknowledged
// on Abort so the server redelivers it.
type JetStreamQueue struct {
	conn      *nats.Conn
	consumer  jetstream.Consumer
	fetchWait time.Duration
	pending   jetstream.Msg
}

// OpenJetStream connects to the NATS server and binds to an existing durable
// consumer of the configured stream.
func OpenJetStream(ctx context.Context, cfg model.QueueConfig) (*JetStreamQueue, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATSURL, err)
	}
	q, err := NewJetStreamQueue(ctx, nc, cfg.Stream, cfg.Consumer, cfg.FetchWait)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

// NewJetStreamQueue binds to a consumer using an existing connection. The
// queue takes ownership of nc and closes it on Close.
func NewJetStreamQueue(ctx context.Context, nc *nats.Conn, stream, consumer string, fetchWait time.Duration) (*JetStreamQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	c, err := js.Consumer(ctx, stream, consumer)
	if err != nil {
		return nil, fmt.Errorf("binding consumer %s/%s: %w", stream, consumer, err)
	}
	if fetchWait <= 0 {
		fetchWait = model.DefaultFetchWait
	}
	return &JetStreamQueue{conn: nc, consumer: c, fetchWait: fetchWait}, nil
}

func (q *JetStreamQueue) FetchNext(ctx context.Context) (string, bool, error) {
	if q.pending != nil {
		return "", false, errors.New("fetch next: previous message neither confirmed nor aborted")
	}
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("fetching message: %w", err)
	}
	msg, err := q.consumer.Next(jetstream.FetchMaxWait(q.fetchWait))
	if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetching message: %w", err)
	}
	q.pending = msg
	return string(msg.Data()), true, nil
}

func (q *JetStreamQueue) Confirm(ctx context.Context) error {
	if q.pending == nil {
		return nil
	}
	msg := q.pending
	q.pending = nil
	if err := msg.DoubleAck(ctx); err != nil {
		return fmt.Errorf("acking message: %w", err)
	}
	return nil
}

func (q *JetStreamQueue) Abort(ctx context.Context) error {
	if q.pending == nil {
		return nil
	}
	msg := q.pending
	q.pending = nil
	if err := msg.Nak(); err != nil {
		return fmt.Errorf("nacking message: %w", err)
	}
	return nil
}

func (q *JetStreamQueue) Close() error {
	err := q.Abort(context.Background())
	q.conn.Close()
	return err
}
