package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
)

// ProcessPayment submits a charge. A decline is returned in-band.
func (c *ServiceClients) ProcessPayment(ctx context.Context, req saga.PaymentRequest) (*saga.PaymentResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/payments/process", c.config.PaymentServiceURL)
	var result saga.PaymentResponse
	if err := c.doRequest(ctx, PaymentService, http.MethodPost, endpoint, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

var _ saga.PaymentPort = (*ServiceClients)(nil)
