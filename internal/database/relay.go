package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const messageSource = "marketplace-scraper"

// RedisClient is the part of the redis client the relay uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context) (StatusCounts, error)
}

// StreamMessage is the JSON body of one stream entry. Subject is the search
// query for CARDS_EXTRACTED and the product id for OFFERS_COLLECTED.
type StreamMessage struct {
	EventID     string          `json:"event_id"`
	Kind        string          `json:"kind"`
	SubjectType string          `json:"subject_type"`
	Subject     string          `json:"subject"`
	RunID       string          `json:"run_id"`
	Attempt     int             `json:"attempt"`
	Source      string          `json:"source"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// newStreamMessage lifts the run id out of the payload so consumers can
// group entries by run without decoding the body.
func newStreamMessage(event *OutboxEvent) (*StreamMessage, error) {
	var head struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(event.Payload, &head); err != nil {
		return nil, fmt.Errorf("failed to read payload of %s: %w", event.ID, err)
	}

	return &StreamMessage{
		EventID:     event.ID.String(),
		Kind:        event.EventType,
		SubjectType: event.AggregateType,
		Subject:     event.AggregateID,
		RunID:       head.RunID,
		Attempt:     event.RetryCount + 1,
		Source:      messageSource,
		OccurredAt:  event.CreatedAt.UTC(),
		Payload:     event.Payload,
	}, nil
}

// fields are the flat stream entry values. data carries the whole message;
// the rest are copies for XRANGE filtering.
func (m *StreamMessage) fields() (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stream message: %w", err)
	}
	return map[string]any{
		"kind":        m.Kind,
		"subject":     m.Subject,
		"run_id":      m.RunID,
		"occurred_at": m.OccurredAt.Format(time.RFC3339Nano),
		"data":        string(data),
	}, nil
}

// Relay moves outbox events to redis streams.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), redisClient, logger, config)
}

func newRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start publishes due events every PollInterval until ctx ends.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil {
			r.logger.Error("outbox poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of due events and returns how many went out.
// The CLI calls it once after a run.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	published := 0
	for _, event := range events {
		if err := r.deliver(ctx, event); err != nil {
			r.logger.Warn("event not delivered",
				"event_id", event.ID,
				"kind", event.EventType,
				"subject", event.AggregateID,
				"attempt", event.RetryCount+1,
				"error", err)
			continue
		}
		published++
	}

	if len(events) > 0 {
		r.logger.Debug("outbox flushed", "due", len(events), "published", published)
	}
	return published, nil
}

// Stats reports the publish backlog (retries included) and the dead-lettered
// count.
func (r *Relay) Stats(ctx context.Context) (pending, dead int64, err error) {
	counts, err := r.outbox.CountByStatus(ctx)
	if err != nil {
		return 0, 0, err
	}
	return counts.Backlog(), counts[OutboxStatusDeadLetter], nil
}

// deliver publishes event and records the outcome. A failed publish is
// rescheduled through MarkFailed.
func (r *Relay) deliver(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to reschedule event", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return err
	}

	r.logger.Info("event published",
		"event_id", event.ID,
		"kind", event.EventType,
		"subject", event.AggregateID,
		"stream", event.TargetStream)
	return nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	msg, err := newStreamMessage(event)
	if err != nil {
		return err
	}

	values, err := msg.fields()
	if err != nil {
		return err
	}

	if err := r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}
