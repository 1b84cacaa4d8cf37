package conversions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metacapi"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/idempotency"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis/redistest"
)

type fakeSender struct {
	events []metacapi.Event
	err    error
}

func (f *fakeSender) Send(_ context.Context, events ...metacapi.Event) (*metacapi.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.events = append(f.events, events...)
	return &metacapi.SendResult{EventsReceived: len(events)}, nil
}

func newRelay(t *testing.T, sender *fakeSender) *Relay {
	t.Helper()
	manager, err := idempotency.NewManager(redistest.New(), time.Hour)
	require.NoError(t, err)
	relay, err := NewRelay(sender, manager, logger.New(logger.Options{ServiceName: "conversions-test", Output: io.Discard}))
	require.NoError(t, err)
	return relay
}

func orderPaidEnvelope(t *testing.T, orderID uuid.UUID) outbox.PayloadEnvelope {
	t.Helper()
	data, err := json.Marshal(payloads.OrderPaidEvent{
		OrderID:     orderID,
		Plate:       "ABC1234",
		AmountCents: 2990,
		PaidAt:      time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC),
		Buyer:       payloads.Buyer{Name: "Maria Souza", Email: "maria@example.com", Phone: "11988887777", CPF: "52998224725"},
		Attribution: payloads.Attribution{UTMSource: "meta", LandingPage: "https://placa.example/consulta"},
	})
	require.NoError(t, err)
	return outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now(), Data: data}
}

func TestRelaySendsHashedPurchaseOnce(t *testing.T) {
	sender := &fakeSender{}
	relay := newRelay(t, sender)
	orderID := uuid.New()
	env := orderPaidEnvelope(t, orderID)

	require.NoError(t, relay.Process(context.Background(), enums.EventOrderPaid, env))
	require.NoError(t, relay.Process(context.Background(), enums.EventOrderPaid, env))

	require.Len(t, sender.events, 1)
	event := sender.events[0]
	assert.Equal(t, metacapi.EventPurchase, event.EventName)
	assert.Equal(t, "purchase-"+orderID.String(), event.EventID)
	assert.Equal(t, json.Number("29.90"), event.CustomData.Value)
	assert.Equal(t, "https://placa.example/consulta", event.EventSourceURL)
	require.Len(t, event.UserData.Emails, 1)
	assert.Equal(t, metacapi.HashEmail("maria@example.com"), event.UserData.Emails[0])
	assert.NotContains(t, event.UserData.Emails[0], "@")
}

func TestRelayIgnoresOtherEvents(t *testing.T) {
	sender := &fakeSender{}
	relay := newRelay(t, sender)

	env := orderPaidEnvelope(t, uuid.New())
	require.NoError(t, relay.Process(context.Background(), enums.EventReportEnriched, env))
	assert.Empty(t, sender.events)
}

func TestRelayRetriesAfterSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("graph api down")}
	relay := newRelay(t, sender)
	env := orderPaidEnvelope(t, uuid.New())

	require.Error(t, relay.Process(context.Background(), enums.EventOrderPaid, env))

	sender.err = nil
	require.NoError(t, relay.Process(context.Background(), enums.EventOrderPaid, env))
	assert.Len(t, sender.events, 1)
}
