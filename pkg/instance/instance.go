package instance

import (
	"os"

	"github.com/medicart/medicart-api/pkg/env"
)

// GetID identifies this process when it holds a distributed lock. It prefers
// MEDICART_INSTANCE_ID, then the hostname.
func GetID() string {
	if id := env.Get("MEDICART_INSTANCE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
