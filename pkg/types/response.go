package types

// Ack is embedded by every success payload so the body carries "success":true
// next to the payload's own fields.
type Ack struct {
	Success bool `json:"success"`
}

// OK returns a successful acknowledgement.
func OK() Ack {
	return Ack{Success: true}
}

// ErrorEnvelope is the single failure shape written by the API.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
