// Package instance names the running process for logs and lock ownership.
package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// GetID prefers an explicit WORKER_ID, then the platform dyno name, then the
// hostname.
func GetID() string {
	for _, key := range []string{"WORKER_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
