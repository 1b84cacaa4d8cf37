// Package asaas is a typed client for the Asaas payment gateway (customers and
// PIX charges). Asaas ships no Go SDK.
package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metrics"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	responseReadLimit = 1 << 20
	defaultTimeout    = 15 * time.Second
	genericGatewayMsg = "não foi possível processar o pagamento, tente novamente"
)

var (
	errAPIKeyRequired = errors.New("asaas api key is required")
	errInvalidEnv     = fmt.Errorf("asaas environment must be %q or %q", sandboxEnv, productionEnv)

	// ErrQRCodeNotReady means the charge exists but its PIX payload is still being generated.
	ErrQRCodeNotReady = errors.New("asaas pix qr code not ready")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://sandbox.asaas.com/api/v3",
	productionEnv: "https://api.asaas.com/v3",
}

// Client wraps the Asaas REST API with centralized auth, logging and error mapping.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	environment  string
	webhookToken string
	logger       *logger.Logger
	metrics      *metrics.UpstreamMetrics
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithMetrics(m *metrics.UpstreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient validates the credentials and resolves the environment base URL.
// cfg.BaseURL overrides the environment default.
func NewClient(ctx context.Context, cfg config.AsaasConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, errInvalidEnv
	}
	if override := strings.TrimSpace(cfg.BaseURL); override != "" {
		baseURL = override
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		environment:  env,
		webhookToken: strings.TrimSpace(cfg.WebhookToken),
		logger:       logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "asaas_env", env), "asaas client initialized")
	}
	return c, nil
}

// Environment reports the normalized Asaas environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// WebhookToken returns the token Asaas sends in the asaas-access-token header.
func (c *Client) WebhookToken() string {
	if c == nil {
		return ""
	}
	return c.webhookToken
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload, out any) (err error) {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "asaas client not configured")
	}

	started := time.Now()
	defer func() { c.metrics.Observe(metrics.UpstreamAsaas, op, started, err) }()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, mErr := json.Marshal(payload)
		if mErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, mErr, "marshal asaas request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build asaas request")
	}
	req.Header.Set("access_token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "placaexpress-backend")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, genericGatewayMsg)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, genericGatewayMsg)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		mapped := mapAPIError(resp.StatusCode, raw, op)
		c.log(ctx, "error", op, map[string]any{"error": mapped.Error(), "status": resp.StatusCode})
		return mapped
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, genericGatewayMsg)
		}
	}
	return nil
}

type apiErrorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// mapAPIError surfaces the gateway's first error description.
func mapAPIError(status int, body []byte, op string) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)

	msg := genericGatewayMsg
	code := ""
	if len(parsed.Errors) > 0 {
		code = parsed.Errors[0].Code
		if d := strings.TrimSpace(parsed.Errors[0].Description); d != "" {
			msg = d
		}
	}

	errCode := pkgerrors.CodeProviderUnavailable
	if status == http.StatusUnauthorized {
		errCode = pkgerrors.CodeDependency
	}
	return pkgerrors.Wrap(errCode, fmt.Errorf("asaas %s: status %d code %q", op, status, code), msg).
		WithDetails(map[string]any{"status": status, "gatewayCode": code})
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("asaas %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("asaas %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"cpf", "token", "email", "phone", "payload", "qr"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
