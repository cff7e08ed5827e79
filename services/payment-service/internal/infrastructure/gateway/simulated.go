package gateway

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/application"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
)

// DefaultDeclineRate is the share of otherwise acceptable charges the
// simulated issuer turns down
const DefaultDeclineRate = 0.05

// Decline reasons
const (
	ReasonAmountLimit = "Amount exceeds the single payment limit"
	ReasonCardBlocked = "Card declined by issuer"
	ReasonIssuer      = "Payment declined by issuer"
)

// SimulatedGateway approves charges the way a sandbox acquirer does:
// amounts above domain.MaxAmount and test cards ending in 0000 always
// fail, everything else fails at DeclineRate.
type SimulatedGateway struct {
	declineRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedGateway creates a gateway declining at declineRate, clamped to [0, 1]
func NewSimulatedGateway(declineRate float64, seed uint64) *SimulatedGateway {
	if declineRate < 0 {
		declineRate = 0
	}
	if declineRate > 1 {
		declineRate = 1
	}
	return &SimulatedGateway{
		declineRate: declineRate,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Authorize decides the charge
func (g *SimulatedGateway) Authorize(ctx context.Context, payment *domain.Payment, card *domain.CardDetails) (application.Decision, error) {
	if err := ctx.Err(); err != nil {
		return application.Decision{}, err
	}

	if payment.Amount > domain.MaxAmount {
		return application.Decision{Reason: ReasonAmountLimit}, nil
	}
	if card != nil && strings.HasSuffix(strings.ReplaceAll(card.CardNumber, " ", ""), "0000") {
		return application.Decision{Reason: ReasonCardBlocked}, nil
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()
	if roll < g.declineRate {
		return application.Decision{Reason: ReasonIssuer}, nil
	}
	return application.Decision{Approved: true}, nil
}

var _ application.Gateway = (*SimulatedGateway)(nil)
