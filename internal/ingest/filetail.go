package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

func StartFileTail(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Event, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		path := path
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		t := &tailer{
			path:       path,
			startAtEnd: current.StartAtEnd,
			cfg:        cfg,
			parser:     parser,
			out:        out,
			logger:     logger,
		}
		go t.run(ctx)
	}
}

// tailer follows one telemetry file, surviving rotation: when the file
// shrinks below the read offset it is reopened from the start.
type tailer struct {
	path       string
	startAtEnd bool
	cfg        *config.Manager
	parser     *Parser
	out        chan<- model.Event
	logger     *slog.Logger
	offset     int64
}

func (t *tailer) run(ctx context.Context) {
	for ctx.Err() == nil {
		file, err := t.open()
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("tail open failed", "path", t.path, "err", err)
			}
			if !BackoffSleep(ctx, 500*time.Millisecond) {
				return
			}
			continue
		}
		reopen := t.follow(ctx, file)
		_ = file.Close()
		if !reopen {
			return
		}
	}
}

func (t *tailer) open() (*os.File, error) {
	file, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	t.offset = 0
	if t.startAtEnd {
		if pos, err := file.Seek(0, io.SeekEnd); err == nil {
			t.offset = pos
		}
		// Only the very first open skips existing content; after a
		// rotation we want the new file from the top.
		t.startAtEnd = false
	}
	return file, nil
}

// follow reads lines until the file rotates or the context ends. It returns
// true when the caller should reopen and keep tailing.
func (t *tailer) follow(ctx context.Context, file *os.File) bool {
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			t.offset += int64(len(line))
			forwardLine(ctx, t.parser, t.cfg.Get(), line, "file_tail", t.out, t.logger)
			continue
		}
		if err != io.EOF {
			if t.logger != nil {
				t.logger.Warn("tail read error", "path", t.path, "err", err)
			}
			return true
		}
		if !BackoffSleep(ctx, 200*time.Millisecond) {
			return false
		}
		if t.rotated() {
			return true
		}
	}
}

func (t *tailer) rotated() bool {
	info, err := os.Stat(t.path)
	return err == nil && info.Size() < t.offset
}
