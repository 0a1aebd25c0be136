// Package collector moves events from origin queues to their targets.
//
// A Collector is built for one run of one group. Its Retriever drains the
// origin queues into the store, its Processor delivers the group's
// processable events in id order, and its Retryer replays error events that
// are still inside the group's retry window.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/eventcollector/internal/events"
	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/queue"
	"github.com/alfredjeanlab/eventcollector/internal/store"
	"github.com/alfredjeanlab/eventcollector/internal/target"
)

// Executor delivers events to targets. Execute never fails: every failure is
// reported as a retryable result.
type Executor interface {
	PrepareToken(ctx context.Context, t *model.Target) error
	Execute(ctx context.Context, t *model.Target, e *model.Event) model.ProcessingResult
}

var _ Executor = (*target.Executor)(nil)

// Run is the state shared by the components of one run.
type Run struct {
	ID         string
	StartedAt  time.Time
	Operations *model.Operations
	Clock      func() time.Time
}

func (r *Run) now() time.Time {
	return r.Clock()
}

// Options configures a Collector. Store, Queues and Executor are required.
type Options struct {
	Group         string
	Store         store.Store
	Queues        queue.Opener
	Executor      Executor
	Publisher     events.Publisher
	Logger        *slog.Logger
	ProcessingLog *ProcessingLog
	MaxEvents     int
	RunID         string
	Clock         func() time.Time
}

// Collector wires the components of one run together.
type Collector struct {
	run       *Run
	group     *GroupService
	retriever *Retriever
	processor *Processor
	retryer   *Retryer
	logger    *slog.Logger
}

// Load reads the operation table and the group configuration and builds a
// Collector. Configuration problems are returned as *model.ConfigError.
func Load(ctx context.Context, opts Options) (*Collector, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.ProcessingLog == nil {
		opts.ProcessingLog = NewProcessingLog(io.Discard)
	}
	logger := opts.Logger.With("run_id", opts.RunID, "group", opts.Group)

	ops, err := opts.Store.LoadOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operations: %w", err)
	}
	if ops.Len() == 0 {
		return nil, &model.ConfigError{Owner: "operations", Msg: "no operations configured"}
	}
	g, err := opts.Store.LoadGroup(ctx, opts.Group)
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}
	for _, o := range g.Origins() {
		if g.TargetOf(o.ID) == nil {
			return nil, &model.ConfigError{Owner: "origin " + o.Name, Msg: fmt.Sprintf("unknown target %d", o.TargetID)}
		}
		if o.Queue.Kind == model.QueueSQL {
			if err := queue.ValidateSQL(o.Queue); err != nil {
				return nil, &model.ConfigError{Owner: "origin " + o.Name, Msg: err.Error()}
			}
		}
	}

	run := &Run{ID: opts.RunID, StartedAt: opts.Clock(), Operations: ops, Clock: opts.Clock}
	gs := NewGroupService(opts.Store, g, run, opts.MaxEvents)
	p := &Processor{
		store:     opts.Store,
		group:     g,
		exec:      opts.Executor,
		publisher: opts.Publisher,
		logger:    logger,
		plog:      opts.ProcessingLog,
		run:       run,
	}
	return &Collector{
		run:   run,
		group: gs,
		retriever: &Retriever{
			store:     opts.Store,
			queues:    opts.Queues,
			publisher: opts.Publisher,
			logger:    logger,
			run:       run,
		},
		processor: p,
		retryer: &Retryer{
			group:     gs,
			processor: p,
			publisher: opts.Publisher,
			logger:    logger,
			run:       run,
		},
		logger: logger,
	}, nil
}

// Group returns the group service of the run.
func (c *Collector) Group() *GroupService { return c.group }

// Operations returns the operation table loaded for the run.
func (c *Collector) Operations() *model.Operations { return c.run.Operations }

// RunID returns the identifier of the run.
func (c *Collector) RunID() string { return c.run.ID }

// Processor returns the processor of the run.
func (c *Collector) Processor() *Processor { return c.processor }

// RetrieveNewEvents drains every origin of the group in group order. The
// first failing origin stops the phase; origins after it are not attempted.
func (c *Collector) RetrieveNewEvents(ctx context.Context) (int, error) {
	total := 0
	for _, o := range c.group.Group().Origins() {
		n, err := c.retriever.RetrieveEvents(ctx, o)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ProcessEvents delivers the group's processable events.
func (c *Collector) ProcessEvents(ctx context.Context) (int, error) {
	evs, err := c.group.ProcessableEvents(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Info("processable events", "count", len(evs))
	return c.processor.ExecuteEvents(ctx, evs, true)
}

// Collect runs the retrieve phase and then the process phase. A failing
// retrieve phase does not prevent processing of what is already stored.
func (c *Collector) Collect(ctx context.Context) error {
	retrieved, retrieveErr := c.RetrieveNewEvents(ctx)
	if retrieveErr != nil {
		c.logger.Error("retrieve phase failed", "retrieved", retrieved, "err", retrieveErr)
	} else {
		c.logger.Info("retrieve phase done", "retrieved", retrieved)
	}

	processed, processErr := c.ProcessEvents(ctx)
	if processErr != nil {
		c.logger.Error("process phase failed", "processed", processed, "err", processErr)
	} else {
		c.logger.Info("process phase done", "processed", processed)
	}

	return errors.Join(retrieveErr, processErr)
}

// Retry runs the windowed obsolescence and replay pass.
func (c *Collector) Retry(ctx context.Context) (RetryStats, error) {
	return c.retryer.Retry(ctx)
}
