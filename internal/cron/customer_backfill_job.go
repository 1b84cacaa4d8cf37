package cron

import (
	"context"
	"fmt"

	"github.com/placaexpress/vehicle-report-backend/internal/customers"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
)

type backfiller interface {
	Backfill(ctx context.Context) (*customers.BackfillResult, error)
}

// NewCustomerBackfillJob reconciles CRM rows with settled gateway payments.
func NewCustomerBackfillJob(svc backfiller, logg *logger.Logger) (Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("customer service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &customerBackfillJob{svc: svc, logg: logg}, nil
}

type customerBackfillJob struct {
	svc  backfiller
	logg *logger.Logger
}

func (j *customerBackfillJob) Name() string { return "customer-backfill" }

// Run reports partial progress even when some payments failed.
func (j *customerBackfillJob) Run(ctx context.Context) error {
	res, err := j.svc.Backfill(ctx)
	if res != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"scanned":  res.Scanned,
			"inserted": res.Inserted,
		}), "customer backfill pass")
	}
	if err != nil {
		return fmt.Errorf("customer backfill: %w", err)
	}
	return nil
}
