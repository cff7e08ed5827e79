package application

import (
	"context"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
)

// Decision is a gateway's answer to a charge
type Decision struct {
	Approved bool
	Reason   string
}

// Gateway authorizes charges against the card network
type Gateway interface {
	Authorize(ctx context.Context, payment *domain.Payment, card *domain.CardDetails) (Decision, error)
}
