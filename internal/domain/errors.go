package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition  = errors.New("invalid checkout step transition")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNotAuthenticated   = errors.New("buyer is not authenticated")
	ErrSessionNotFound    = errors.New("checkout session not found")
	ErrCartLocked         = errors.New("cart can only be changed before checkout")
	ErrItemNotInCart      = errors.New("item is not in the cart")
	ErrListingNotFound    = errors.New("listing not found")
	ErrListingUnavailable = errors.New("listing is not available")
	ErrVendorNotVerified  = errors.New("vendor is not verified")
	ErrInsufficientStock  = errors.New("insufficient quantity available")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrOrderAlreadyExists = errors.New("order already exists")
)

// ValidationError is a field-level input problem with a reason fit to show the buyer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GatewayRejection means the payment could not be initiated.
type GatewayRejection struct {
	Message string
	Err     error
}

func (e *GatewayRejection) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway rejected request: %s: %v", e.Message, e.Err)
	}
	return "payment gateway rejected request: " + e.Message
}

func (e *GatewayRejection) Unwrap() error { return e.Err }

// PaymentFailed means the provider reported a terminal negative outcome.
type PaymentFailed struct {
	OrderID string
	Status  PaymentStatus
}

func (e *PaymentFailed) Error() string {
	return fmt.Sprintf("payment for order %s ended with status %s", e.OrderID, e.Status)
}

// PollTimeout means no terminal status was observed in time. The payment may still complete.
type PollTimeout struct {
	OrderID  string
	Attempts int
}

func (e *PollTimeout) Error() string {
	return fmt.Sprintf("payment for order %s still processing after %d status checks", e.OrderID, e.Attempts)
}

// LineError records why a single order line could not be reconciled.
type LineError struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Err      error  `json:"-"`
}

func (e LineError) Error() string {
	return fmt.Sprintf("item %s (qty %d): %v", e.ItemID, e.Quantity, e.Err)
}

// ReconciliationError means the payment succeeded but the order or inventory could not be recorded.
type ReconciliationError struct {
	OrderID string
	Lines   []LineError
	Err     error
}

func (e *ReconciliationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reconciliation of order %s failed", e.OrderID)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, l := range e.Lines {
		b.WriteString("; ")
		b.WriteString(l.Error())
	}
	return b.String()
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// NotificationError is logged only.
type NotificationError struct {
	OrderID string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification for order %s failed: %v", e.OrderID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

const (
	KindValidation     = "validation"
	KindGateway        = "gateway_rejection"
	KindPaymentFailed  = "payment_failed"
	KindPollTimeout    = "poll_timeout"
	KindReconciliation = "reconciliation"
	KindNotification   = "notification"
	KindInternal       = "internal"
)

// ErrorKind classifies err for API consumers.
func ErrorKind(err error) string {
	var (
		validationErr *ValidationError
		gatewayErr    *GatewayRejection
		failedErr     *PaymentFailed
		timeoutErr    *PollTimeout
		reconcileErr  *ReconciliationError
		notifyErr     *NotificationError
	)
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &gatewayErr):
		return KindGateway
	case errors.As(err, &failedErr):
		return KindPaymentFailed
	case errors.As(err, &timeoutErr):
		return KindPollTimeout
	case errors.As(err, &reconcileErr):
		return KindReconciliation
	case errors.As(err, &notifyErr):
		return KindNotification
	default:
		return KindInternal
	}
}

// UserMessage is the copy shown to the buyer for err.
func UserMessage(err error) string {
	var validationErr *ValidationError
	var gatewayErr *GatewayRejection
	switch ErrorKind(err) {
	case KindValidation:
		errors.As(err, &validationErr)
		return validationErr.Reason
	case KindGateway:
		errors.As(err, &gatewayErr)
		if gatewayErr.Message != "" {
			return gatewayErr.Message
		}
		return "We could not start the payment. Please try again."
	case KindPaymentFailed:
		return "The payment was not completed. You can try again or go back to your cart."
	case KindPollTimeout:
		return "Your payment is still processing. Please check back later before paying again."
	case KindReconciliation:
		return "Your payment was received but we could not finalise your order. Our team has been alerted."
	default:
		return "Something went wrong. Please try again."
	}
}
