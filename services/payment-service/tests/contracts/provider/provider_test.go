//go:build contract

package provider_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pact-foundation/pact-go/v2/models"
	pact "github.com/pact-foundation/pact-go/v2/provider"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/api"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/application"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/gateway"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/memory"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
)

// providerHarness swaps in a fresh service whose gateway declines at the
// rate the provider state asks for
type providerHarness struct {
	mu     sync.RWMutex
	router *gin.Engine
}

func (h *providerHarness) reset(declineRate float64) {
	gin.SetMode(gin.TestMode)
	logger := logging.NewNop()
	service := application.NewPaymentService(
		memory.NewPaymentRepository(),
		gateway.NewSimulatedGateway(declineRate, 1),
		clock.NewSystem(),
		logger,
		nil,
	)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.router = api.NewRouter("payment-service", service, metrics.New(metrics.DefaultConfig("pact")), logger)
}

func (h *providerHarness) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	router := h.router
	h.mu.RUnlock()
	router.ServeHTTP(w, r)
}

func TestPactProvider(t *testing.T) {
	absPactDir, err := filepath.Abs("../../../../../contracts/pacts")
	require.NoError(t, err)

	if _, err := os.Stat(absPactDir); os.IsNotExist(err) {
		t.Skip("No pacts found - run consumer tests first")
	}

	harness := &providerHarness{}
	harness.reset(0)

	server := httptest.NewServer(harness)
	defer server.Close()

	err = pact.NewVerifier().VerifyProvider(t, pact.VerifyRequest{
		Provider:        "payment-service",
		ProviderBaseURL: server.URL,
		PactDirs:        []string{absPactDir},
		RequestTimeout:  10 * time.Second,
		StateHandlers: models.StateHandlers{
			"payments are accepted": func(setup bool, state models.ProviderState) (models.ProviderStateResponse, error) {
				if setup {
					harness.reset(0)
				}
				return nil, nil
			},
			"payments are declined": func(setup bool, state models.ProviderState) (models.ProviderStateResponse, error) {
				if setup {
					harness.reset(1)
				}
				return nil, nil
			},
		},
	})
	require.NoError(t, err)
}
