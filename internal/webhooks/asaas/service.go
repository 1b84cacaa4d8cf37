// Package asaaswebhook applies payment notifications pushed by Asaas.
package asaaswebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
)

// Outcome describes what a delivery did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnknown   Outcome = "unknown_payment"
)

type OrderApplier interface {
	OrderForPayment(ctx context.Context, paymentID string) (*models.Order, error)
	ApplyPaid(ctx context.Context, orderID uuid.UUID, source string) (bool, error)
}

type LegacyApplier interface {
	ApplyPaidPayment(ctx context.Context, gatewayPaymentID, gatewayStatus, source string) (bool, bool, error)
}

type Deduper interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Orders OrderApplier
	Legacy LegacyApplier
	Guard  Deduper
	Logger *logger.Logger
}

type Service struct {
	orders OrderApplier
	legacy LegacyApplier
	guard  Deduper
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order applier required")
	}
	return &Service{
		orders: params.Orders,
		legacy: params.Legacy,
		guard:  params.Guard,
		logg:   params.Logger,
	}, nil
}

// HandleEvent applies a settled charge to whichever flow owns it. A delivery
// that fails with a retryable error releases its id so the gateway retry is
// processed again; other failures stay marked and redeliveries ack as
// duplicates.
func (s *Service) HandleEvent(ctx context.Context, event asaas.WebhookEvent) (outcome Outcome, err error) {
	if !event.SettlesPayment() {
		return OutcomeIgnored, nil
	}
	paymentID := strings.TrimSpace(event.Payment.ID)
	if paymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"payment_id": paymentID, "event": event.Event})
	}

	key := dedupeKey(event)
	if s.guard != nil {
		seen, gerr := s.guard.CheckAndMark(ctx, key)
		switch {
		case gerr != nil:
			s.warn(ctx, "webhook idempotency unavailable", gerr)
		case seen:
			return OutcomeDuplicate, nil
		default:
			defer func() {
				if err == nil || !pkgerrors.IsRetryable(err) {
					return
				}
				if rerr := s.guard.Release(ctx, key); rerr != nil {
					s.warn(ctx, "release webhook idempotency key", rerr)
				}
			}()
		}
	}

	order, err := s.orders.OrderForPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if order != nil {
		applied, err := s.orders.ApplyPaid(ctx, order.ID, outbox.SourceWebhook)
		if err != nil {
			return "", err
		}
		return appliedOutcome(applied), nil
	}

	if s.legacy != nil {
		found, applied, err := s.legacy.ApplyPaidPayment(ctx, paymentID, event.Payment.Status.String(), outbox.SourceWebhook)
		if err != nil {
			return "", err
		}
		if found {
			return appliedOutcome(applied), nil
		}
	}

	s.warn(ctx, "webhook for unknown payment", nil)
	return OutcomeUnknown, nil
}

func dedupeKey(event asaas.WebhookEvent) string {
	if id := strings.TrimSpace(event.ID); id != "" {
		return id
	}
	return event.Event + ":" + strings.TrimSpace(event.Payment.ID)
}

func appliedOutcome(applied bool) Outcome {
	if applied {
		return OutcomeApplied
	}
	return OutcomeNoop
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	if err != nil {
		ctx = s.logg.WithField(ctx, "error", err.Error())
	}
	s.logg.Warn(ctx, msg)
}
