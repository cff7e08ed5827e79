package saga

import (
	"net/http"
	"strings"

	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
)

// PaymentDetails is the payment block of a purchase request
type PaymentDetails struct {
	PaymentMethod string `json:"paymentMethod,omitempty"`
	CardDetails
}

// PurchaseRequest asks for Quantity units of ItemID on behalf of OwnerID
type PurchaseRequest struct {
	ItemID         string
	Quantity       int
	OwnerID        string
	PaymentDetails *PaymentDetails
}

// Validate rejects requests the saga cannot start with
func (r PurchaseRequest) Validate() error {
	fields := make(map[string]string)
	if strings.TrimSpace(r.ItemID) == "" {
		fields["itemId"] = "is required"
	}
	if r.Quantity < 1 {
		fields["quantity"] = "must be at least 1"
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		fields["ownerId"] = "is required"
	}
	if len(fields) > 0 {
		return apperrors.ErrValidationWithFields("invalid purchase request", fields)
	}
	return nil
}

func (r PurchaseRequest) paymentMethod() string {
	if r.PaymentDetails != nil && r.PaymentDetails.PaymentMethod != "" {
		return r.PaymentDetails.PaymentMethod
	}
	return DefaultPaymentMethod
}

func (r PurchaseRequest) card() *CardDetails {
	if r.PaymentDetails == nil {
		return nil
	}
	card := r.PaymentDetails.CardDetails
	return &card
}

// Result is the single answer of a purchase saga
type Result struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	HTTPStatus int    `json:"-"`
}

// PurchaseData is the payload of a completed purchase
type PurchaseData struct {
	SagaID        string  `json:"sagaId"`
	OrderID       string  `json:"orderId"`
	PaymentID     string  `json:"paymentId"`
	TransactionID string  `json:"transactionId"`
	Item          *Item   `json:"item"`
	Quantity      int     `json:"quantity"`
	TotalAmount   float64 `json:"totalAmount"`
	HoldID        string  `json:"holdId"`
	Finalized     bool    `json:"finalized"`
}

// FailureData is the payload of a failed purchase
type FailureData struct {
	SagaID            string `json:"sagaId"`
	FailedStep        Step   `json:"failedStep"`
	State             State  `json:"state"`
	Code              string `json:"code"`
	Compensated       bool   `json:"compensated"`
	CompensationError string `json:"compensationError,omitempty"`
}

func successResult(exec *Execution) *Result {
	message := MsgPurchaseCompleted
	if !exec.Finalized {
		message = MsgFinalizePending
	}
	return &Result{
		Success: true,
		Message: message,
		Data: &PurchaseData{
			SagaID:        exec.ID,
			OrderID:       exec.OrderID,
			PaymentID:     exec.PaymentID,
			TransactionID: exec.TransactionID,
			Item:          exec.Item,
			Quantity:      exec.Quantity,
			TotalAmount:   exec.TotalAmount,
			HoldID:        exec.HoldID,
			Finalized:     exec.Finalized,
		},
		HTTPStatus: http.StatusOK,
	}
}

func failureResult(exec *Execution) *Result {
	failure := exec.Failure
	data := &FailureData{
		SagaID:      exec.ID,
		FailedStep:  failure.Step,
		State:       exec.State,
		Code:        failure.Code,
		Compensated: exec.Compensated(),
	}
	if exec.Compensation != nil {
		data.CompensationError = exec.Compensation.Error
	}
	return &Result{
		Success:    false,
		Message:    failure.Message,
		Data:       data,
		HTTPStatus: failure.HTTPStatus(),
	}
}

// HTTPStatus maps the failure onto the purchase API: 409 for business
// rejections, 504 for timeouts, 502 for any other upstream fault
func (f Failure) HTTPStatus() int {
	switch {
	case f.Rejected:
		return http.StatusConflict
	case f.Code == apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
