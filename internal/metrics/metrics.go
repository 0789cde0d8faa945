package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// New returns a DogStatsD client, or a no-op client when addr is empty so
// callers never need a nil check.
func New(addr, namespace string) (statsd.ClientInterface, error) {
	if addr == "" {
		return &statsd.NoOpClient{}, nil
	}
	client, err := statsd.New(addr, statsd.WithNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("create statsd client: %w", err)
	}
	return client, nil
}

// Tag formats a DogStatsD key:value tag.
func Tag(key, value string) string {
	return key + ":" + value
}
