package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/resilience"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/tracing"
)

const (
	InventoryService = "inventory-service"
	PaymentService   = "payment-service"

	headerCorrelationID = "X-Correlation-ID"
)

// ServiceClients holds HTTP clients for the saga's collaborators
type ServiceClients struct {
	config     *Config
	httpClient *http.Client
	breakers   *resilience.CircuitBreakerRegistry
}

// Config holds service URLs
type Config struct {
	InventoryServiceURL string
	PaymentServiceURL   string
	// Timeout caps a single HTTP exchange; the saga's step timeout usually
	// fires first
	Timeout time.Duration
}

// NewServiceClients creates a new ServiceClients instance. Every
// collaborator gets its own circuit breaker.
func NewServiceClients(config *Config, logger *logging.Logger, m *metrics.Metrics) *ServiceClients {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServiceClients{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breakers: resilience.NewCircuitBreakerRegistry(logger.Logger, m),
	}
}

// Breakers exposes the breaker registry for status reporting
func (c *ServiceClients) Breakers() *resilience.CircuitBreakerRegistry {
	return c.breakers
}

// statusError is a non-2xx answer; the breaker counts it as a failure
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.status, e.body)
}

// doRequest performs an HTTP request through the service's breaker and
// decodes the response. Failures come back as AppErrors: TIMEOUT,
// SERVICE_UNAVAILABLE or BAD_GATEWAY.
func (c *ServiceClients) doRequest(ctx context.Context, service, method, url string, body interface{}, result interface{}) error {
	breaker := c.breakers.GetWithConfig(resilience.DefaultCircuitBreakerConfig(service))

	_, err := breaker.Execute(ctx, func() (interface{}, error) {
		return nil, c.exchange(ctx, service, method, url, body, result)
	})
	if err == nil {
		return nil
	}

	var se *statusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout(service + " call").Wrap(err)
	case errors.As(err, &se) && se.status == http.StatusGatewayTimeout:
		return apperrors.ErrTimeout(service + " call").Wrap(err)
	case errors.As(err, &se) && se.status == http.StatusServiceUnavailable:
		return apperrors.ErrServiceUnavailable(service).Wrap(err)
	case errors.As(err, &se):
		return apperrors.ErrBadGateway(service, se.status).Wrap(err)
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.ErrServiceUnavailable(service).Wrap(err)
	}
}

func (c *ServiceClients) exchange(ctx context.Context, service, method, url string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if correlationID, ok := ctx.Value(logging.CorrelationIDKey).(string); ok && correlationID != "" {
		req.Header.Set(headerCorrelationID, correlationID)
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &statusError{status: resp.StatusCode, body: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return apperrors.ErrBadGateway(service, resp.StatusCode).Wrap(fmt.Errorf("failed to unmarshal response: %w", err))
		}
	}

	return nil
}
