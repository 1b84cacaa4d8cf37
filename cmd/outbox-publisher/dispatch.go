package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/registry"
)

// verdict is what happened to one event within a batch.
type verdict struct {
	published bool
	reason    enums.OutboxDLQErrorReason // set when the event is abandoned
	err       error
	topic     string
}

// processBatch reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) verdict {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return verdict{reason: enums.OutboxDLQReasonUnroutable, err: err}
	}
	topic := resolved.Descriptor.Topic
	err = s.send(ctx, topic, messageFor(event, resolved))
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		return verdict{published: true, topic: topic}
	case errors.As(err, &nonRetryable):
		return verdict{reason: enums.OutboxDLQReasonNonRetryable, err: err, topic: topic}
	case event.AttemptCount+1 >= s.maxAttempts:
		return verdict{reason: enums.OutboxDLQReasonMaxAttempts, err: fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err), topic: topic}
	}
	return verdict{err: err, topic: topic}
}

// settle persists the verdict. Only database errors abort the batch.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, v verdict) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
		"topic":         v.topic,
	})

	switch {
	case v.published:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case v.reason != "":
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{"dlq_reason": v.reason, "error": v.err.Error()}), "outbox event moved to dlq")
		if err := s.dlq.RecordTx(tx, event, v.reason, v.err, s.now()); err != nil {
			return fmt.Errorf("record %s in dlq: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, v.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark %s terminal: %w", event.ID, err)
		}
	default:
		s.logg.Warn(s.logg.WithField(logCtx, "error", v.err.Error()), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark %s failed: %w", event.ID, err)
		}
	}
	return nil
}

func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	env := resolved.Envelope
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(event.EventType),
			"event_version":  strconv.Itoa(env.Version),
			"source":         env.Source,
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w %s", errNoPublisher, topic))
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w %s", errNoPublisher, topic))
	}
	_, err := result.Get(ctx)
	return err
}
