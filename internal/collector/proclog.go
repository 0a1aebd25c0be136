package collector

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// ProcessingLog writes one record per delivery result.
type ProcessingLog struct {
	logger *slog.Logger
}

// NewProcessingLog creates a processing log writing text records to w.
func NewProcessingLog(w io.Writer) *ProcessingLog {
	return &ProcessingLog{logger: slog.New(slog.NewTextHandler(w, nil))}
}

// Record logs the state e reached. Warnings and failures are logged at WARN
// and ERROR so they stand out in the file.
func (l *ProcessingLog) Record(ctx context.Context, e *model.Event, origin string) {
	l.logger.Log(ctx, stateLevel(e.State), e.ShortDescription(),
		"state", e.State,
		"info", flatten(e.ProcessingInfo),
		"origin", origin,
		"type", e.Type,
		"identification", e.Identification,
		"source", flatten(e.Source),
	)
}

func stateLevel(s model.State) slog.Level {
	switch s {
	case model.StateWarning:
		return slog.LevelWarn
	case model.StateError, model.StateRetryable:
		return slog.LevelError
	}
	return slog.LevelInfo
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return strings.TrimSpace(newlines.Replace(s))
}
