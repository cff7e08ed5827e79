//go:build contract

package consumer_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pact-foundation/pact-go/v2/consumer"
	"github.com/pact-foundation/pact-go/v2/matchers"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/clients"
)

const (
	consumerName = "orchestrator"
	pactDir      = "../../../../contracts/pacts"
)

// newPact creates a V4 mock provider that writes into the shared pact directory.
func newPact(t *testing.T, provider string) *consumer.V4HTTPMockProvider {
	t.Helper()
	ensurePactDir(t)

	mockProvider, err := consumer.NewV4Pact(consumer.MockHTTPProviderConfig{
		Consumer: consumerName,
		Provider: provider,
		PactDir:  pactDir,
	})
	require.NoError(t, err)
	return mockProvider
}

// ensurePactDir ensures the pact directory exists.
func ensurePactDir(t *testing.T) {
	absPath, err := filepath.Abs(pactDir)
	require.NoError(t, err)

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		err = os.MkdirAll(absPath, 0755)
		require.NoError(t, err)
	}
}

// newClients points both collaborators at the mock server
func newClients(config consumer.MockServerConfig) *clients.ServiceClients {
	url := fmt.Sprintf("http://%s:%d", config.Host, config.Port)
	return clients.NewServiceClients(&clients.Config{
		InventoryServiceURL: url,
		PaymentServiceURL:   url,
	}, nil, nil)
}

// Common matchers for reuse

// UUIDMatcher returns a matcher for UUID strings.
func UUIDMatcher() matchers.Matcher {
	return matchers.Regex("550e8400-e29b-41d4-a716-446655440000", `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
}

// TimestampMatcher returns a matcher for RFC 3339 timestamps, fractional
// seconds and offsets included.
func TimestampMatcher() matchers.Matcher {
	return matchers.Regex("2026-03-01T12:15:00Z", `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`)
}

func jsonRequest(body matchers.Map) consumer.V4RequestBuilderFunc {
	return func(b *consumer.V4RequestBuilder) {
		b.Header("Content-Type", matchers.String("application/json")).
			Header("Accept", matchers.String("application/json")).
			JSONBody(body)
	}
}

func jsonResponse(body matchers.Map) consumer.V4ResponseBuilderFunc {
	return func(b *consumer.V4ResponseBuilder) {
		b.Header("Content-Type", matchers.Regex("application/json; charset=utf-8", `application/json.*`)).
			JSONBody(body)
	}
}
