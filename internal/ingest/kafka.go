package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

const (
	kafkaMinBytes = 1e3
	kafkaMaxBytes = 10e6
)

// StartKafka consumes sensor telemetry lines from the configured topic. Each
// message value is one line in the same format the file tailer reads.
func StartKafka(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Event, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: kafkaMinBytes,
		MaxBytes: kafkaMaxBytes,
	})
	go consumeKafka(ctx, reader, cfg, parser, out, logger)
}

func consumeKafka(ctx context.Context, reader *kafka.Reader, cfg *config.Manager, parser *Parser, out chan<- model.Event, logger *slog.Logger) {
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("kafka read error", "err", err)
			}
			continue
		}
		forwardLine(ctx, parser, cfg.Get(), string(m.Value), "kafka", out, logger)
	}
}
