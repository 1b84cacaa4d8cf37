package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/customers"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type stubBackfiller struct {
	res *customers.BackfillResult
	err error
}

func (s stubBackfiller) Backfill(context.Context) (*customers.BackfillResult, error) {
	return s.res, s.err
}

func TestCustomerBackfillJobSurfacesRowErrors(t *testing.T) {
	rowErrs := multierr.Combine(errors.New("pay_1"), errors.New("pay_2"))
	job, err := NewCustomerBackfillJob(stubBackfiller{
		res: &customers.BackfillResult{Scanned: 5, Inserted: 3},
		err: rowErrs,
	}, quietLogger())
	require.NoError(t, err)

	runErr := job.Run(context.Background())
	require.Error(t, runErr)
	assert.Len(t, multierr.Errors(errors.Unwrap(runErr)), 2)
	assert.Equal(t, "customer-backfill", job.Name())
}

type stubPoller struct {
	limit int
}

func (s *stubPoller) PollProcessing(_ context.Context, limit int) (int, error) {
	s.limit = limit
	return 2, nil
}

func TestLegacyReportPollJobPassesBatch(t *testing.T) {
	poller := &stubPoller{}
	job, err := NewLegacyReportPollJob(poller, 25, quietLogger())
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 25, poller.limit)
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type stubRetentionRepo struct {
	cutoff  time.Time
	limits  []int
	batches []int64
}

func (s *stubRetentionRepo) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	s.cutoff = cutoff
	s.limits = append(s.limits, limit)
	if len(s.batches) == 0 {
		return 0, nil
	}
	n := s.batches[0]
	s.batches = s.batches[1:]
	return n, nil
}

func TestOutboxRetentionJobUsesWindow(t *testing.T) {
	repo := &stubRetentionRepo{batches: []int64{7}}
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     quietLogger(),
		DB:         passthroughTx{},
		Repository: repo,
		Retention:  48 * time.Hour,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-48*time.Hour), repo.cutoff)
	assert.Equal(t, []int{defaultRetentionBatch}, repo.limits)
}

func TestOutboxRetentionJobDeletesInBatchesUntilShort(t *testing.T) {
	repo := &stubRetentionRepo{batches: []int64{10, 10, 3}}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     quietLogger(),
		DB:         passthroughTx{},
		Repository: repo,
		Batch:      10,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.limits, 3)
	assert.Empty(t, repo.batches)
}
