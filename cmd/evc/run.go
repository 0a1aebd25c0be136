package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alfredjeanlab/eventcollector/internal/collector"
	"github.com/alfredjeanlab/eventcollector/internal/events"
	"github.com/alfredjeanlab/eventcollector/internal/idgen"
	"github.com/alfredjeanlab/eventcollector/internal/queue"
	"github.com/alfredjeanlab/eventcollector/internal/store/postgres"
	"github.com/alfredjeanlab/eventcollector/internal/target"
)

// runEnv holds what one command run opened, so it can be released in order.
type runEnv struct {
	collector *collector.Collector
	store     *postgres.PostgresStore
	publisher events.Publisher
	plog      io.Closer
	logger    *slog.Logger
}

// openRun connects to the store, loads the configured group and builds a
// collector. withProcessingLog opens the processing log for commands that
// deliver events.
func openRun(ctx context.Context, command string, withProcessingLog bool) (*runEnv, error) {
	if err := cfg.RequireCollector(); err != nil {
		return nil, err
	}
	runID, err := idgen.RunID(command)
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	env := &runEnv{logger: logger.With("run_id", runID)}

	var plog *collector.ProcessingLog
	if withProcessingLog {
		w, closer, err := openProcessingLog(cfg.ProcessingLog)
		if err != nil {
			return nil, err
		}
		env.plog = closer
		plog = collector.NewProcessingLog(w)
	}

	st, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.store = st

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.publisher = pub
		env.logger.Debug("notifications enabled", "nats_url", cfg.NATSURL)
	} else {
		env.publisher = &events.NoopPublisher{}
	}

	c, err := collector.Load(ctx, collector.Options{
		Group:         cfg.CollectorGroup,
		Store:         st,
		Queues:        queue.DefaultOpener{},
		Executor:      target.NewExecutor(nil),
		Publisher:     env.publisher,
		Logger:        logger,
		ProcessingLog: plog,
		MaxEvents:     cfg.MaxProcessableEvents,
		RunID:         runID,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.collector = c
	return env, nil
}

// Close releases the publisher, the store and the processing log.
func (e *runEnv) Close() {
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			e.logger.Error("error closing publisher", "err", err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("error closing store", "err", err)
		}
	}
	if e.plog != nil {
		if err := e.plog.Close(); err != nil {
			e.logger.Error("error closing processing log", "err", err)
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openProcessingLog opens path for appending; an empty path means stderr.
func openProcessingLog(path string) (io.Writer, io.Closer, error) {
	if path == "" {
		return os.Stderr, nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open processing log: %w", err)
	}
	return f, f, nil
}
