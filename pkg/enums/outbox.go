package enums

import "fmt"

// OutboxAggregateType names the row an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregatePlateQuery    OutboxAggregateType = "plate_query"
	AggregateVehicleReport OutboxAggregateType = "vehicle_report"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePlateQuery,
	AggregateVehicleReport,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderPaid         OutboxEventType = "order.paid"
	EventReportEnriched    OutboxEventType = "report.enriched"
	EventLegacyReportPaid  OutboxEventType = "legacy_report.paid"
	EventLegacyReportReady OutboxEventType = "legacy_report.completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventReportEnriched,
	EventLegacyReportPaid,
	EventLegacyReportReady,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
