// Package consumers runs outbox event handlers behind Pub/Sub subscriptions.
package consumers

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
)

// Handler processes one decoded outbox envelope. A returned error nacks the
// message so Pub/Sub redelivers it.
type Handler interface {
	Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

// Ack decides the fate of a message delivered to a handler.
type Ack int

const (
	AckDone Ack = iota
	AckRetry
)

// Runner binds a handler to a subscription.
type Runner struct {
	name         string
	subscription *pubsub.Subscriber
	handler      Handler
	logg         *logger.Logger
}

func NewRunner(name string, subscription *pubsub.Subscriber, handler Handler, logg *logger.Logger) (*Runner, error) {
	if subscription == nil {
		return nil, fmt.Errorf("%s: subscription required", name)
	}
	if handler == nil {
		return nil, fmt.Errorf("%s: handler required", name)
	}
	if logg == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	return &Runner{name: name, subscription: subscription, handler: handler, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	err := r.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if Dispatch(ctx, r.handler, r.logg, msg.ID, msg.Attributes, msg.Data) == AckRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s receive: %w", r.name, err)
	}
	return nil
}

// Dispatch decodes a message and hands it to h. Undecodable messages are
// acked since redelivery cannot fix them.
func Dispatch(ctx context.Context, h Handler, logg *logger.Logger, messageID string, attrs map[string]string, data []byte) Ack {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": string(eventType),
	})

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		logg.Error(logCtx, "failed to decode envelope", err)
		return AckDone
	}
	if err := h.Process(ctx, eventType, envelope); err != nil {
		logg.Error(logCtx, "event handling failed", err)
		return AckRetry
	}
	return AckDone
}
