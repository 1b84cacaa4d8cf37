package asaas

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WebhookTokenHeader carries the shared secret configured on the Asaas webhook.
const WebhookTokenHeader = "asaas-access-token"

// Webhook event names handled by the receiver.
const (
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentReceived  = "PAYMENT_RECEIVED"
)

// WebhookEvent is the body Asaas posts for payment events.
type WebhookEvent struct {
	ID          string  `json:"id"`
	Event       string  `json:"event"`
	DateCreated string  `json:"dateCreated"`
	Payment     Payment `json:"payment"`
}

// SettlesPayment reports whether the event means the charge was paid.
func (e WebhookEvent) SettlesPayment() bool {
	return e.Event == EventPaymentConfirmed || e.Event == EventPaymentReceived
}

// VerifyWebhookToken compares the request header with the configured token in constant time.
func (c *Client) VerifyWebhookToken(r *http.Request) bool {
	expected := c.WebhookToken()
	if expected == "" || r == nil {
		return false
	}
	got := strings.TrimSpace(r.Header.Get(WebhookTokenHeader))
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
