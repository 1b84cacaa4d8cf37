package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/registry"
)

const analyticsConsumerName = "analytics"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type idempotencyChecker interface {
	Once(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (bool, error)
}

// Consumer writes sales events to BigQuery while honoring Redis idempotency.
// Rows never carry buyer identifiers.
type Consumer struct {
	client   tableInserter
	table    string
	manager  idempotencyChecker
	decoders *registry.DecoderRegistry
	logg     *logger.Logger
}

// NewConsumer builds a new analytics consumer.
func NewConsumer(client tableInserter, table string, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client:   client,
		table:    strings.TrimSpace(table),
		manager:  manager,
		decoders: registry.DefaultDecoders(),
		logg:     logg,
	}, nil
}

// Process ingests the outbox envelope into BigQuery if the event is supported.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "event not handled by analytics consumer")
		return nil
	}
	if strings.TrimSpace(envelope.EventID) == "" {
		return fmt.Errorf("event id missing")
	}

	ingested, err := c.manager.Once(ctx, analyticsConsumerName, envelope.EventID, func(ctx context.Context) error {
		row, err := c.buildRow(eventType, envelope)
		if err != nil {
			return fmt.Errorf("build sales row: %w", err)
		}
		return c.client.InsertRows(ctx, c.table, []any{row})
	})
	switch {
	case err != nil:
		c.logg.Error(logCtx, "sales event not ingested", err)
		return err
	case !ingested:
		c.logg.Info(logCtx, "event already processed")
	default:
		c.logg.Info(logCtx, "sales event ingested")
	}
	return nil
}

type salesEventRow struct {
	EventID           string               `bigquery:"event_id"`
	EventType         string               `bigquery:"event_type"`
	Source            string               `bigquery:"source"`
	OccurredAt        time.Time            `bigquery:"occurred_at"`
	OrderID           cbigquery.NullString `bigquery:"order_id"`
	ReportID          cbigquery.NullString `bigquery:"report_id"`
	PlateQueryID      cbigquery.NullString `bigquery:"plate_query_id"`
	PlatePrefix       cbigquery.NullString `bigquery:"plate_prefix"`
	AmountCents       cbigquery.NullInt64  `bigquery:"amount_cents"`
	ProviderCostCents cbigquery.NullInt64  `bigquery:"provider_cost_cents"`
	UTMSource         cbigquery.NullString `bigquery:"utm_source"`
	UTMMedium         cbigquery.NullString `bigquery:"utm_medium"`
	UTMCampaign       cbigquery.NullString `bigquery:"utm_campaign"`
}

// InsertID lets BigQuery drop a row redelivered after a lost ack.
func (r *salesEventRow) InsertID() string { return r.EventID }

func (c *Consumer) buildRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*salesEventRow, error) {
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	decoded, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	row := &salesEventRow{
		EventID:    envelope.EventID,
		EventType:  string(eventType),
		Source:     envelope.Source,
		OccurredAt: envelope.OccurredAt,
	}

	switch p := decoded.(type) {
	case *payloads.OrderPaidEvent:
		row.OrderID = nullString(p.OrderID.String())
		row.PlateQueryID = nullString(p.PlateQueryID.String())
		row.PlatePrefix = nullString(platePrefix(p.Plate))
		row.AmountCents = nullInt(p.AmountCents)
		row.ProviderCostCents = nullInt(p.ProviderCostCents)
		row.UTMSource = nullString(p.Attribution.UTMSource)
		row.UTMMedium = nullString(p.Attribution.UTMMedium)
		row.UTMCampaign = nullString(p.Attribution.UTMCampaign)
	case *payloads.ReportEnrichedEvent:
		row.OrderID = nullString(p.OrderID.String())
		row.PlateQueryID = nullString(p.PlateQueryID.String())
		row.PlatePrefix = nullString(platePrefix(p.Plate))
		row.ProviderCostCents = nullInt(p.ProviderCostTotalCents)
	case *payloads.LegacyReportPaidEvent:
		row.ReportID = nullString(p.ReportID.String())
		row.PlatePrefix = nullString(platePrefix(p.Plate))
		row.AmountCents = nullInt(p.AmountCents)
	case *payloads.LegacyReportCompletedEvent:
		row.ReportID = nullString(p.ReportID.String())
		row.PlatePrefix = nullString(platePrefix(p.Plate))
	}
	return row, nil
}

// platePrefix keeps the letter block only.
func platePrefix(plate string) string {
	if len(plate) < 3 {
		return ""
	}
	return plate[:3]
}

func nullString(v string) cbigquery.NullString {
	v = strings.TrimSpace(v)
	return cbigquery.NullString{StringVal: v, Valid: v != ""}
}

func nullInt(v int64) cbigquery.NullInt64 {
	return cbigquery.NullInt64{Int64: v, Valid: true}
}
