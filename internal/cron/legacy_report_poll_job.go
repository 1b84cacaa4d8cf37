package cron

import (
	"context"
	"fmt"

	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
)

type processingPoller interface {
	PollProcessing(ctx context.Context, limit int) (int, error)
}

// NewLegacyReportPollJob advances legacy reports waiting on a provider protocol.
func NewLegacyReportPollJob(svc processingPoller, batch int, logg *logger.Logger) (Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("legacy report service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &legacyReportPollJob{svc: svc, batch: batch, logg: logg}, nil
}

type legacyReportPollJob struct {
	svc   processingPoller
	batch int
	logg  *logger.Logger
}

func (j *legacyReportPollJob) Name() string { return "legacy-report-poll" }

func (j *legacyReportPollJob) Run(ctx context.Context) error {
	finished, err := j.svc.PollProcessing(ctx, j.batch)
	if finished > 0 {
		j.logg.Info(j.logg.WithField(ctx, "finished", finished), "legacy reports finished")
	}
	if err != nil {
		return fmt.Errorf("legacy report poll: %w", err)
	}
	return nil
}
