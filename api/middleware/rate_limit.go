package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
)

// maxPeekBody bounds how much of the body is buffered to find an e-mail.
const maxPeekBody = 64 << 10

type RateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one traffic surface per client IP and, when
// emailLimit is set, per e-mail found in the JSON body.
type RateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// quota is one counter a request must fit under.
type quota struct {
	kind  string
	value string
	limit int
}

func (p RateLimitPolicy) scope(q quota) string {
	return p.name + ":" + q.kind + ":" + q.value
}

// RateLimit enforces fixed-window counters kept in Redis. A Redis failure
// answers DEPENDENCY_ERROR rather than letting traffic through unmetered.
func RateLimit(policy RateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			quotas, err := policy.quotasFor(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			for _, q := range quotas {
				allowed, count, err := store.FixedWindowAllow(ctx, policy.scope(q), int64(q.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					policy.reject(ctx, logg, w, q, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// quotasFor lists the counters that apply to r. Reading the body for the
// e-mail quota leaves r.Body rewound for the handler.
func (p RateLimitPolicy) quotasFor(r *http.Request) ([]quota, error) {
	var quotas []quota
	if ip := clientIP(r); p.ipLimit > 0 && ip != "" {
		quotas = append(quotas, quota{kind: "ip", value: ip, limit: p.ipLimit})
	}
	if p.emailLimit == 0 || r.Body == nil {
		return quotas, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
	if email := emailIn(body); email != "" {
		quotas = append(quotas, quota{kind: "email", value: hashValue(email), limit: p.emailLimit})
	}
	return quotas, nil
}

func (p RateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, q quota, count int64) {
	seconds := int(p.window.Seconds())
	if logg != nil {
		key := q.kind
		if q.kind == "email" {
			key = "email_hash"
		}
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":         p.name,
			"scope":          q.kind,
			key:              q.value,
			"attempts":       count,
			"limit":          q.limit,
			"window_seconds": seconds,
		}), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// emailIn finds the buyer or admin e-mail in a JSON body, normalized.
func emailIn(payload []byte) string {
	var body struct {
		Email         string `json:"email"`
		CustomerEmail string `json:"customerEmail"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	email := body.Email
	if email == "" {
		email = body.CustomerEmail
	}
	return strings.ToLower(strings.TrimSpace(email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
