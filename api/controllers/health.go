package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
)

const readyTimeout = 3 * time.Second

// Pinger is anything the readiness check can reach: the database, Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Placa-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]any{"success": true, "status": "live"})
	}
}

// HealthReady pings every dependency concurrently and fails with
// DEPENDENCY_ERROR naming the ones that did not answer.
func HealthReady(cfg *config.Config, checks map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Placa-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			failed = map[string]string{}
		)
		g, gctx := errgroup.WithContext(ctx)
		for name, check := range checks {
			if check == nil {
				continue
			}
			g.Go(func() error {
				if err := check.Ping(gctx); err != nil {
					mu.Lock()
					failed[name] = err.Error()
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(failed) > 0 {
			err := pkgerrors.New(pkgerrors.CodeDependency, "not ready").WithDetails(map[string]any{"failed": failed})
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"success": true, "status": "ready"})
	}
}
