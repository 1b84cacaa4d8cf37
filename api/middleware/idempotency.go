package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	pkgredis "github.com/placaexpress/vehicle-report-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	checkoutIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = 2 * time.Minute

	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// idempotentRoutes maps "METHOD path" to how long a response is replayed.
// Charge creation keeps its replay for the whole PIX due window.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/v1/create-pix-order":         checkoutIdempotencyTTL,
	"POST /api/v1/create-payment":           checkoutIdempotencyTTL,
	"POST /api/admin/v1/customers/backfill": defaultIdempotencyTTL,
}

func routeTTL(method, path string) (time.Duration, bool) {
	ttl, ok := idempotentRoutes[method+" "+path]
	return ttl, ok
}

// storedResponse is the Redis value behind an idempotency key. InFlight is
// set while the first request is still running.
type storedResponse struct {
	RequestHash string `json:"requestHash"`
	InFlight    bool   `json:"inFlight,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the first non-5xx response for a repeated
// Idempotency-Key on the routes in idempotentRoutes. Requests without the
// header run normally. The raw path is matched because inside a sub-router
// the chi pattern is still partial when this runs.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(r.Method+"|"+r.URL.Path, clientKey)

			claim, _ := json.Marshal(storedResponse{RequestHash: hash, InFlight: true})
			claimed, err := store.SetNX(ctx, key, string(claim), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, key, hash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			settle(context.WithoutCancel(ctx), store, key, hash, ttl, capture, logg)
		})
	}
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if err != nil && !pkgredis.IsMiss(err) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency key"))
		return
	}
	var prior storedResponse
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &prior); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
			return
		}
	}
	switch {
	case raw == "" || prior.InFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this Idempotency-Key is still in progress"))
	case prior.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	default:
		if prior.ContentType != "" {
			w.Header().Set("Content-Type", prior.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(prior.Status)
		_, _ = w.Write(prior.Body)
	}
}

// settle stores the finished response, or frees the key after a 5xx so the
// client can retry with it.
func settle(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, ttl time.Duration, c *responseCapture, logg *logger.Logger) {
	if err := store.Del(ctx, key); err != nil {
		logIdempotencyFailure(ctx, logg, "release idempotency key", err)
		return
	}
	status := c.statusOrOK()
	if status >= http.StatusInternalServerError {
		return
	}
	record, err := json.Marshal(storedResponse{
		RequestHash: hash,
		Status:      status,
		ContentType: c.Header().Get("Content-Type"),
		Body:        c.body.Bytes(),
	})
	if err != nil {
		logIdempotencyFailure(ctx, logg, "encode idempotency record", err)
		return
	}
	if _, err := store.SetNX(ctx, key, string(record), ttl); err != nil {
		logIdempotencyFailure(ctx, logg, "persist idempotency record", err)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logIdempotencyFailure(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil {
		logg.Error(ctx, msg, err)
	}
}
