package application

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
)

// Facade messages
const (
	MsgProcessed        = "Payment processed successfully"
	MsgProcessingFailed = "Payment processing failed"
	MsgFound            = "Payment found"
	MsgNotFound         = "Payment not found"
	MsgValid            = "Payment is valid"
	MsgNotValid         = "Payment is not valid"
	MsgHistory          = "Payment history retrieved successfully"
	MsgRefunded         = "Payment refunded successfully"
	MsgNotRefundable    = "Only successful payments can be refunded"
	MsgOrderMismatch    = "orderId was already charged with a different owner, amount or currency"
	storageDependency   = "payment storage"
)

// DefaultHistoryLimit caps GetHistory
const DefaultHistoryLimit = 100

// PaymentService handles payment operations
type PaymentService struct {
	repo    domain.PaymentRepository
	gateway Gateway
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(repo domain.PaymentRepository, gateway Gateway, clk clock.Clock, logger *logging.Logger, m *metrics.Metrics) *PaymentService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PaymentService{
		repo:    repo,
		gateway: gateway,
		clock:   clk,
		logger:  logger.WithComponent("payment-service"),
		metrics: m,
	}
}

// ProcessPayment charges the owner. A second request for the same orderId
// returns the payment recorded by the first without charging again; one
// that differs in owner, amount or currency is a CONFLICT.
func (s *PaymentService) ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (*PaymentResult, error) {
	if orderID := strings.TrimSpace(cmd.OrderID); orderID != "" {
		existing, err := s.repo.FindByOrderID(ctx, orderID)
		switch {
		case err == nil:
			return s.replay(ctx, cmd, existing)
		case !errors.Is(err, domain.ErrPaymentNotFound):
			return nil, s.storageFault(ctx, "find payment by order", err)
		}
	}

	card := cmd.card()
	payment, err := domain.NewPayment(domain.NewPaymentInput{
		OrderID:       cmd.OrderID,
		OwnerID:       cmd.OwnerID,
		Amount:        cmd.Amount,
		Currency:      cmd.Currency,
		PaymentMethod: cmd.PaymentMethod,
		Card:          card,
	}, s.clock.Now())
	if err != nil {
		return nil, apperrors.ErrValidation(err.Error())
	}

	decision, err := s.gateway.Authorize(ctx, payment, card)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Gateway authorization failed", "paymentId", payment.ID)
		return nil, apperrors.ErrServiceUnavailable("payment gateway").Wrap(err)
	}

	now := s.clock.Now()
	if decision.Approved {
		payment.Approve(now)
	} else {
		payment.Decline(decision.Reason, now)
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			// lost a race with a concurrent request for the same order
			existing, findErr := s.repo.FindByOrderID(ctx, payment.OrderID)
			if findErr != nil {
				return nil, s.storageFault(ctx, "find payment by order", findErr)
			}
			return s.replay(ctx, cmd, existing)
		}
		return nil, s.storageFault(ctx, "create payment", err)
	}

	s.metrics.RecordPayment(string(payment.Status), payment.PaymentMethod)
	s.logger.Audit(ctx, "process", "payment", payment.ID, payment.OwnerID, map[string]any{
		"orderId": payment.OrderID,
		"amount":  payment.Amount,
		"status":  string(payment.Status),
	})

	if !decision.Approved {
		s.logger.Info("Payment declined", "paymentId", payment.ID, "reason", decision.Reason)
		return toResult(payment, false, MsgProcessingFailed, apperrors.CodePaymentDeclined), nil
	}
	return toResult(payment, true, MsgProcessed, ""), nil
}

func (s *PaymentService) replay(ctx context.Context, cmd ProcessPaymentCommand, existing *domain.Payment) (*PaymentResult, error) {
	if !existing.Matches(cmd.OwnerID, cmd.Amount, cmd.Currency) {
		s.logger.WithContext(ctx).Warn("Order reference reused with different payment details",
			"orderId", existing.OrderID,
			"paymentId", existing.ID,
		)
		return nil, apperrors.ErrConflict(MsgOrderMismatch)
	}

	s.logger.WithContext(ctx).Info("Returning existing payment for order",
		"orderId", existing.OrderID,
		"paymentId", existing.ID,
	)
	switch existing.Status {
	case domain.PaymentStatusSuccess:
		return toResult(existing, true, MsgProcessed, ""), nil
	case domain.PaymentStatusRefunded:
		return toResult(existing, false, MsgRefunded, apperrors.CodePaymentDeclined), nil
	default:
		return toResult(existing, false, MsgProcessingFailed, apperrors.CodePaymentDeclined), nil
	}
}

// GetPayment returns a payment and its status
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*PaymentResult, error) {
	payment, result, err := s.load(ctx, paymentID)
	if result != nil || err != nil {
		return result, err
	}
	return toResult(payment, true, MsgFound, ""), nil
}

// ValidatePayment reports whether a payment is a captured, unrefunded charge
func (s *PaymentService) ValidatePayment(ctx context.Context, paymentID string) (*PaymentResult, error) {
	payment, result, err := s.load(ctx, paymentID)
	if result != nil || err != nil {
		return result, err
	}
	if payment.IsValid() {
		return toResult(payment, true, MsgValid, ""), nil
	}
	return toResult(payment, false, MsgNotValid, ""), nil
}

// GetHistory lists an owner's payments, newest first
func (s *PaymentService) GetHistory(ctx context.Context, ownerID string) (*HistoryResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.ErrValidationWithFields("ownerId is required", map[string]string{"ownerId": "required"})
	}

	payments, err := s.repo.FindByOwnerID(ctx, ownerID, DefaultHistoryLimit)
	if err != nil {
		return nil, s.storageFault(ctx, "payment history", err)
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = ToPaymentDTO(p)
	}
	return &HistoryResult{Success: true, Message: MsgHistory, Payments: dtos}, nil
}

// RefundPayment reverses a successful payment. Refunding anything else is
// a conflict.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID string) (*PaymentResult, error) {
	payment, result, err := s.load(ctx, paymentID)
	if result != nil || err != nil {
		return result, err
	}

	if err := payment.Refund(s.clock.Now()); err != nil {
		return nil, apperrors.ErrConflict(MsgNotRefundable).WithDetail("status", string(payment.Status))
	}
	if err := s.repo.Save(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, apperrors.ErrConflict("payment was modified concurrently")
		}
		return nil, s.storageFault(ctx, "refund payment", err)
	}

	s.metrics.RecordPayment(string(payment.Status), payment.PaymentMethod)
	s.logger.Audit(ctx, "refund", "payment", payment.ID, payment.OwnerID, map[string]any{"amount": payment.Amount})
	return toResult(payment, true, MsgRefunded, ""), nil
}

// Ping checks the backing store
func (s *PaymentService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// load finds a payment by id. Ids that are not UUIDs cannot exist and are
// reported as not found.
func (s *PaymentService) load(ctx context.Context, paymentID string) (*domain.Payment, *PaymentResult, error) {
	notFound := &PaymentResult{Message: MsgNotFound, Code: apperrors.CodePaymentNotFound}
	if _, err := uuid.Parse(paymentID); err != nil {
		return nil, notFound, nil
	}

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, notFound, nil
		}
		return nil, nil, s.storageFault(ctx, "find payment", err)
	}
	return payment, nil, nil
}

func (s *PaymentService) storageFault(ctx context.Context, operation string, err error) error {
	s.logger.WithContext(ctx).WithError(err).Error("Storage operation failed", "operation", operation)
	return apperrors.ErrServiceUnavailable(storageDependency).Wrap(err)
}
