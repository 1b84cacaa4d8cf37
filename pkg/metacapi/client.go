// Package metacapi relays server-side purchase events to the Meta Conversions API.
package metacapi

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
	defaultBaseURL     = "https://graph.facebook.com"
	errorBodyReadLimit = 2048

	EventPurchase   = "Purchase"
	ActionSourceWeb = "website"
	CurrencyBRL     = "BRL"
)

var errNotConfigured = errors.New("meta conversions api is not configured")

type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiVersion  string
	pixelID     string
	accessToken string
	testCode    string
	logger      *logger.Logger
	metrics     *metrics.UpstreamMetrics
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

func WithMetrics(m *metrics.UpstreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg config.ConversionsConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     defaultBaseURL,
		apiVersion:  strings.TrimSpace(cfg.APIVersion),
		pixelID:     strings.TrimSpace(cfg.PixelID),
		accessToken: strings.TrimSpace(cfg.AccessToken),
		testCode:    strings.TrimSpace(cfg.TestCode),
		logger:      logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// UserData holds SHA-256 hashed identifiers.
type UserData struct {
	Emails      []string `json:"em,omitempty"`
	Phones      []string `json:"ph,omitempty"`
	ExternalIDs []string `json:"external_id,omitempty"`
	FirstNames  []string `json:"fn,omitempty"`
	LastNames   []string `json:"ln,omitempty"`
	Countries   []string `json:"country,omitempty"`
	ClientIP    string   `json:"client_ip_address,omitempty"`
	UserAgent   string   `json:"client_user_agent,omitempty"`
}

type CustomData struct {
	Currency    string      `json:"currency"`
	Value       json.Number `json:"value"`
	ContentName string      `json:"content_name,omitempty"`
	ContentIDs  []string    `json:"content_ids,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	OrderID     string      `json:"order_id,omitempty"`
}

type Event struct {
	EventName      string     `json:"event_name"`
	EventTime      int64      `json:"event_time"`
	EventID        string     `json:"event_id"`
	ActionSource   string     `json:"action_source"`
	EventSourceURL string     `json:"event_source_url,omitempty"`
	UserData       UserData   `json:"user_data"`
	CustomData     CustomData `json:"custom_data"`
}

type eventsRequest struct {
	Data          []Event `json:"data"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

// SendResult is Meta's acknowledgement.
type SendResult struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id"`
}

// Send posts events to the pixel. Meta deduplicates on event_id.
func (c *Client) Send(ctx context.Context, events ...Event) (result *SendResult, err error) {
	if c == nil {
		return nil, errNotConfigured
	}
	if len(events) == 0 {
		return &SendResult{}, nil
	}

	started := time.Now()
	defer func() { c.metrics.Observe(metrics.UpstreamMeta, "send_events", started, err) }()

	payload, err := json.Marshal(eventsRequest{Data: events, TestEventCode: c.testCode})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal conversions request")
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events?%s", c.baseURL, c.apiVersion, url.PathEscape(c.pixelID),
		url.Values{"access_token": {c.accessToken}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build conversions request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send conversions request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "conversions request failed")
	}

	var out SendResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode conversions response")
	}
	if c.logger != nil {
		c.logger.Info(c.logger.WithFields(ctx, map[string]any{
			"events_received": out.EventsReceived,
			"fbtrace_id":      out.FBTraceID,
		}), "meta conversions delivered")
	}
	return &out, nil
}
