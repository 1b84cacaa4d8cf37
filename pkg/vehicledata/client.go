// Package vehicledata is the HTTP client for the vehicle-data provider
// (plate lookup, FIPE price table, RENAINF infractions and protocol reports).
package vehicledata

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

	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metrics"
)

const (
	defaultTimeout        = 20 * time.Second
	responseReadLimit     = 2 << 20
	errorBodyReadLimit    = 1024
	genericProviderErrMsg = "serviço de consulta indisponível, tente novamente em instantes"
)

var (
	errBaseURLRequired     = errors.New("vehicle provider base url is required")
	errCredentialsRequired = errors.New("vehicle provider credentials are required")

	// notFoundPayload stands in for a lookup the provider answered with 404.
	notFoundPayload = json.RawMessage(`{}`)
)

// Client talks to the provider with HTTP Basic Auth.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	logg       *logger.Logger
	metrics    *metrics.UpstreamMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) { c.logg = logg }
}

func WithMetrics(m *metrics.UpstreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func NewClient(baseURL, username, password string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    trimmed,
		username:   strings.TrimSpace(username),
		password:   password,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ProtocolStatus values returned when polling a report protocol.
const (
	ProtocolProcessing = "processando"
	ProtocolDone       = "concluido"
	ProtocolFailed     = "erro"
)

// ProtocolResult is the state of an asynchronous full report.
type ProtocolResult struct {
	Protocol string
	Status   string
	Message  string
	Data     json.RawMessage
}

func (p ProtocolResult) Done() bool   { return p.Status == ProtocolDone }
func (p ProtocolResult) Failed() bool { return p.Status == ProtocolFailed }

// LookupPlate returns the raw basic lookup payload.
func (c *Client) LookupPlate(ctx context.Context, plate string) (json.RawMessage, error) {
	return c.get(ctx, "lookup", "/placa/"+url.PathEscape(plate), false)
}

// Fipe returns the raw FIPE price table entries for a plate. A 404 yields an
// empty object rather than an error.
func (c *Client) Fipe(ctx context.Context, plate string) (json.RawMessage, error) {
	return c.get(ctx, "fipe", "/fipe/"+url.PathEscape(plate), true)
}

// Renainf returns the raw infraction registry payload for a plate. A 404
// yields an empty object rather than an error.
func (c *Client) Renainf(ctx context.Context, plate string) (json.RawMessage, error) {
	return c.get(ctx, "renainf", "/renainf/"+url.PathEscape(plate), true)
}

// RequestReport asks the provider to build a full report and returns its protocol id.
func (c *Client) RequestReport(ctx context.Context, plate string) (string, error) {
	body, err := c.do(ctx, "request_report", http.MethodPost, "/solicitarRelatorio", map[string]string{"placa": plate}, false)
	if err != nil {
		return "", err
	}
	var resp struct {
		Protocolo any `json:"protocolo"`
	}
	if err := decodeNumber(body, &resp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, genericProviderErrMsg)
	}
	protocol := ""
	switch v := resp.Protocolo.(type) {
	case string:
		protocol = strings.TrimSpace(v)
	case json.Number:
		protocol = v.String()
	}
	if protocol == "" {
		return "", pkgerrors.New(pkgerrors.CodeProviderUnavailable, "provedor não retornou o protocolo do relatório")
	}
	return protocol, nil
}

// ReportStatus polls a protocol created by RequestReport.
func (c *Client) ReportStatus(ctx context.Context, protocol string) (*ProtocolResult, error) {
	body, err := c.get(ctx, "report_status", "/relatorio/"+url.PathEscape(protocol), false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Status   string          `json:"status"`
		Mensagem string          `json:"mensagem"`
		Dados    json.RawMessage `json:"dados"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, genericProviderErrMsg)
	}
	return &ProtocolResult{
		Protocol: protocol,
		Status:   strings.ToLower(strings.TrimSpace(resp.Status)),
		Message:  resp.Mensagem,
		Data:     resp.Dados,
	}, nil
}

func (c *Client) get(ctx context.Context, op, path string, notFoundOK bool) (json.RawMessage, error) {
	return c.do(ctx, op, http.MethodGet, path, nil, notFoundOK)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, notFoundOK bool) (body json.RawMessage, err error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vehicle provider client not configured")
	}

	started := time.Now()
	defer func() { c.metrics.Observe(metrics.UpstreamProvider, op, started, err) }()

	var reader io.Reader
	if payload != nil {
		encoded, mErr := json.Marshal(payload)
		if mErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, mErr, "marshal provider request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build provider request")
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.debug(ctx, op, "provider.request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.warn(ctx, op, "provider.transport_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, genericProviderErrMsg)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound && notFoundOK {
		c.debug(ctx, op, "provider.not_found")
		return notFoundPayload, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, genericProviderErrMsg)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.warn(ctx, op, fmt.Sprintf("provider.status_%d", resp.StatusCode))
		return nil, providerError(resp.StatusCode, raw)
	}
	if msg, failed := embeddedError(raw); failed {
		c.warn(ctx, op, "provider.error_body")
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, msg).
			WithDetails(map[string]any{"operation": op})
	}
	if !json.Valid(raw) {
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, genericProviderErrMsg).
			WithDetails(map[string]any{"operation": op, "reason": "invalid json"})
	}

	c.debug(ctx, op, "provider.response")
	return json.RawMessage(raw), nil
}

// providerError keeps the provider's own message when the body carries one.
func providerError(status int, body []byte) error {
	msg := genericProviderErrMsg
	if m, ok := embeddedError(body); ok {
		msg = m
	} else if m := messageField(body); m != "" {
		msg = m
	}
	snippet := body
	if len(snippet) > errorBodyReadLimit {
		snippet = snippet[:errorBodyReadLimit]
	}
	return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable,
		fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(snippet))), msg).
		WithDetails(map[string]any{"status": status})
}

// embeddedError detects {"erro": true, "mensagem": "..."} bodies, which the
// provider also sends with 200.
func embeddedError(body []byte) (string, bool) {
	var envelope struct {
		Erro     any    `json:"erro"`
		Mensagem string `json:"mensagem"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	failed := false
	switch v := envelope.Erro.(type) {
	case bool:
		failed = v
	case string:
		failed = v != "" && !strings.EqualFold(v, "false")
	}
	if !failed {
		return "", false
	}
	if strings.TrimSpace(envelope.Mensagem) == "" {
		return genericProviderErrMsg, true
	}
	return strings.TrimSpace(envelope.Mensagem), true
}

func messageField(body []byte) string {
	var envelope struct {
		Mensagem string `json:"mensagem"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Mensagem != "" {
		return strings.TrimSpace(envelope.Mensagem)
	}
	return strings.TrimSpace(envelope.Message)
}

func decodeNumber(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(out)
}

func (c *Client) debug(ctx context.Context, op, msg string) {
	if c.logg == nil {
		return
	}
	c.logg.Debug(c.logg.WithField(ctx, "provider_op", op), msg)
}

func (c *Client) warn(ctx context.Context, op, msg string) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "provider_op", op), msg)
}
