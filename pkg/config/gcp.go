package config

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions picks inline JSON credentials over a credentials file and
// falls back to application default credentials when neither is set.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(strings.TrimSpace(g.ApplicationCredentials))}
	}
	return nil
}
