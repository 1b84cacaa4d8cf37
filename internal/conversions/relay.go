// Package conversions forwards paid purchases to the Meta Conversions API.
package conversions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metacapi"
	"github.com/placaexpress/vehicle-report-backend/pkg/money"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
)

const consumerName = "meta-conversions"

const contentName = "Relatório veicular"

type sender interface {
	Send(ctx context.Context, events ...metacapi.Event) (*metacapi.SendResult, error)
}

type idempotencyChecker interface {
	Once(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (bool, error)
}

// Relay turns order.paid and legacy_report.paid into Purchase events.
type Relay struct {
	sender  sender
	manager idempotencyChecker
	logg    *logger.Logger
}

func NewRelay(sender sender, manager idempotencyChecker, logg *logger.Logger) (*Relay, error) {
	if sender == nil {
		return nil, fmt.Errorf("conversions sender required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Relay{sender: sender, manager: manager, logg: logg}, nil
}

func (r *Relay) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": string(eventType),
	})

	var (
		event metacapi.Event
		err   error
	)
	switch eventType {
	case enums.EventOrderPaid:
		event, err = fromOrderPaid(envelope.Data)
	case enums.EventLegacyReportPaid:
		event, err = fromLegacyPaid(envelope.Data)
	default:
		return nil
	}
	if err != nil {
		// a payload that does not decode will not decode on redelivery either
		r.logg.Error(logCtx, "skipping undecodable purchase payload", err)
		return nil
	}

	sent, err := r.manager.Once(ctx, consumerName, envelope.EventID, func(ctx context.Context) error {
		_, err := r.sender.Send(ctx, event)
		return err
	})
	switch {
	case err != nil:
		return fmt.Errorf("relay purchase: %w", err)
	case !sent:
		r.logg.Info(logCtx, "purchase already relayed")
	default:
		r.logg.Info(logCtx, "purchase relayed")
	}
	return nil
}

func fromOrderPaid(data json.RawMessage) (metacapi.Event, error) {
	var paid payloads.OrderPaidEvent
	if err := json.Unmarshal(data, &paid); err != nil {
		return metacapi.Event{}, fmt.Errorf("decode order.paid: %w", err)
	}
	if paid.OrderID == uuid.Nil {
		return metacapi.Event{}, fmt.Errorf("order.paid without order id")
	}
	event := purchase(paid.OrderID, paid.AmountCents, paid.PaidAt, paid.Buyer)
	event.EventSourceURL = paid.Attribution.LandingPage
	return event, nil
}

func fromLegacyPaid(data json.RawMessage) (metacapi.Event, error) {
	var paid payloads.LegacyReportPaidEvent
	if err := json.Unmarshal(data, &paid); err != nil {
		return metacapi.Event{}, fmt.Errorf("decode legacy_report.paid: %w", err)
	}
	if paid.ReportID == uuid.Nil {
		return metacapi.Event{}, fmt.Errorf("legacy_report.paid without report id")
	}
	return purchase(paid.ReportID, paid.AmountCents, paid.PaidAt, paid.Buyer), nil
}

// purchase keys event_id on the sale so browser and server events dedupe.
func purchase(saleID uuid.UUID, amountCents int64, paidAt time.Time, buyer payloads.Buyer) metacapi.Event {
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	return metacapi.Event{
		EventName:    metacapi.EventPurchase,
		EventTime:    paidAt.Unix(),
		EventID:      "purchase-" + saleID.String(),
		ActionSource: metacapi.ActionSourceWeb,
		UserData:     metacapi.BuyerUserData(buyer.Email, buyer.Phone, buyer.CPF, buyer.Name),
		CustomData: metacapi.CustomData{
			Currency:    metacapi.CurrencyBRL,
			Value:       json.Number(money.Reais(amountCents).StringFixed(2)),
			ContentName: contentName,
			ContentType: "product",
			OrderID:     saleID.String(),
		},
	}
}
