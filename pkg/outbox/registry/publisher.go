package registry

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
)

// EventDescriptor is where an event type is published and which aggregate
// it must belong to.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed routing checks, with its
// envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so the publisher parks the row.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

var errNullPayload = errors.New("payload missing")

// owners pins each event type to the aggregate that emits it.
var owners = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventOrderPaid:         enums.AggregateOrder,
	enums.EventReportEnriched:    enums.AggregatePlateQuery,
	enums.EventLegacyReportPaid:  enums.AggregateVehicleReport,
	enums.EventLegacyReportReady: enums.AggregateVehicleReport,
}

// EventRegistry routes outbox rows to topics. Every event goes out on the
// orders topic and subscribers filter on the event_type attribute.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]EventDescriptor
	decoders *DecoderRegistry
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	routes := make(map[enums.OutboxEventType]EventDescriptor, len(owners))
	for eventType, aggregate := range owners {
		routes[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: aggregate,
			Topic:         cfg.OrdersTopic,
		}
	}
	return &EventRegistry{routes: routes, decoders: DefaultDecoders()}, nil
}

// Resolve checks the row against its route and decodes the payload with
// the decoder registered for the envelope version.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case route.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: %s belongs to %s, row has %s", event.EventType, route.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("%s: %w", event.EventType, errNullPayload)
	}

	version := envelope.Version
	if version == 0 {
		version = 1
	}
	payload, err := r.decoders.Decode(event.EventType, version, envelope.Data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: route, Envelope: envelope, Payload: payload}, nil
}
