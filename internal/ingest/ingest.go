package ingest

import (
	"context"
	"log/slog"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
	"perimguard/internal/normalize"
)

func SendNonBlocking(ctx context.Context, out chan<- model.Event, ev model.Event, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping event",
				"subject_type", ev.SubjectType,
				"subject_key", ev.SubjectKey,
				"timestamp", ev.Timestamp,
			)
		}
		return false
	}
}

// forwardLine parses one raw line and hands the normalized event to the
// engine channel. Unparseable lines are skipped silently; only
// normalization failures are worth a log line.
func forwardLine(ctx context.Context, parser *Parser, cfg *config.Config, line, source string, out chan<- model.Event, logger *slog.Logger) {
	fields, err := parser.ParseLine(line)
	if err != nil || fields == nil {
		return
	}
	ev, err := normalize.Normalize(*fields, cfg)
	if err != nil {
		if logger != nil {
			logger.Warn("normalize error", "source", source, "err", err)
		}
		return
	}
	ev.Source = source
	SendNonBlocking(ctx, out, ev, logger)
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
