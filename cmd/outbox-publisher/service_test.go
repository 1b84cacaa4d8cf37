package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/registry"
)

const testTopic = "placa-order-events"

func paidEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type harness struct {
	svc  *Service
	repo *fakeRepo
	dlq  *fakeDLQRepo
	pub  *fakePublisher
}

func newHarness(t *testing.T, events []models.OutboxEvent, resolver registryResolver, maxAttempts int) *harness {
	t.Helper()
	h := &harness{
		repo: &fakeRepo{events: events},
		dlq:  &fakeDLQRepo{},
		pub:  &fakePublisher{},
	}
	if resolver == nil {
		resolver = routeTo(testTopic)
	}
	svc, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      10,
			PollIntervalMS: 10,
			MaxAttempts:    maxAttempts,
		}},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           fakePubSubClient{},
		Repository:       h.repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return h.pub },
		DLQRepository:    h.dlq,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestNewServiceListsMissingDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
	assert.Contains(t, err.Error(), "dlq repo is required")
}

func TestProcessBatchRetriesFailureAndPublishesRest(t *testing.T) {
	first, second := paidEvent(t, 0), paidEvent(t, 0)
	h := newHarness(t, []models.OutboxEvent{first, second}, nil, 5)
	h.pub.errs = []error{errors.New("deadline exceeded"), nil}

	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, h.repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, h.repo.published)
	assert.Empty(t, h.dlq.entries)
}

func TestProcessBatchSetsMessageAttributes(t *testing.T) {
	event := paidEvent(t, 0)
	event.EventType = enums.EventLegacyReportPaid
	event.AggregateType = enums.AggregateVehicleReport
	resolver := routeTo(testTopic)
	resolver.source = outbox.SourceWebhook
	h := newHarness(t, []models.OutboxEvent{event}, resolver, 5)

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.pub.messages, 1)

	attrs := h.pub.messages[0].Attributes
	assert.Equal(t, string(enums.EventLegacyReportPaid), attrs["event_type"])
	assert.Equal(t, outbox.SourceWebhook, attrs["source"])
	assert.Equal(t, "1", attrs["event_version"])
	assert.Equal(t, event.AggregateID.String(), attrs["aggregate_id"])
	assert.JSONEq(t, string(event.Payload), string(h.pub.messages[0].Data))
}

func TestPublisherIsCreatedOncePerTopic(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{paidEvent(t, 0), paidEvent(t, 0)}, nil, 5)
	var topics []string
	h.svc.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return h.pub
	}

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{testTopic}, topics)
	assert.Len(t, h.repo.published, 2)
}

func TestProcessBatchDeadLetters(t *testing.T) {
	tests := []struct {
		name       string
		attempts   int
		resolver   registryResolver
		publishErr error
		factory    publisherFactory
		want       enums.OutboxDLQErrorReason
	}{
		{
			name:     "unroutable",
			resolver: fakeRegistry{err: errors.New("no descriptor for event type")},
			want:     enums.OutboxDLQReasonUnroutable,
		},
		{
			name:       "non retryable publish error",
			publishErr: registry.NewNonRetryableError(errors.New("message too large")),
			want:       enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "max attempts",
			attempts:   1,
			publishErr: errors.New("unavailable"),
			want:       enums.OutboxDLQReasonMaxAttempts,
		},
		{
			name:    "missing publisher",
			factory: func(string) publisher { return nil },
			want:    enums.OutboxDLQReasonNonRetryable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event := paidEvent(t, tc.attempts)
			h := newHarness(t, []models.OutboxEvent{event}, tc.resolver, 2)
			h.pub.errs = []error{tc.publishErr}
			if tc.factory != nil {
				h.svc.publisherFactory = tc.factory
			}

			claimed, err := h.svc.processBatch(context.Background())
			require.NoError(t, err)
			assert.True(t, claimed)
			require.Len(t, h.dlq.entries, 1)
			entry := h.dlq.entries[0]
			assert.Equal(t, event.ID, entry.EventID)
			assert.Equal(t, tc.want, entry.ErrorReason)
			assert.Equal(t, event.Payload, entry.Payload)
			assert.Equal(t, []uuid.UUID{event.ID}, h.repo.terminal)
			assert.Empty(t, h.repo.published)
		})
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	h := newHarness(t, nil, nil, 5)
	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil, nil, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	batch := f.events
	if len(batch) > limit {
		batch = batch[:limit]
	}
	f.events = f.events[len(batch):]
	return batch, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) RecordTx(_ *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, _ error, failedAt time.Time) error {
	f.entries = append(f.entries, models.OutboxDLQ{
		EventID:      event.ID,
		Payload:      event.Payload,
		ErrorReason:  reason,
		AttemptCount: event.AttemptCount,
		FailedAt:     failedAt,
	})
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) OrdersPublisher() *gcppubsub.Publisher { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	errs     []error
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	return fakePublishResult{err: err}
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "server-id", nil
}

type fakeRegistry struct {
	topic  string
	source string
	err    error
}

func routeTo(topic string) fakeRegistry {
	return fakeRegistry{topic: topic, source: outbox.SourceInline}
}

func (f fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, err
	}
	env.Source = f.source
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: f.topic, AggregateType: event.AggregateType},
		Envelope:   env,
	}, nil
}
