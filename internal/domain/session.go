package domain

import (
	"fmt"
	"time"
)

type Step string

const (
	StepCart       Step = "cart"
	StepPhoneEntry Step = "phone_entry"
	StepConfirm    Step = "confirm"
	StepProcessing Step = "processing"
	StepSuccess    Step = "success"
	StepError      Step = "error"
)

// PaymentSession is one checkout attempt. It is not safe for concurrent use; callers serialise access.
//
// The generation changes every time the session leaves processing. Asynchronous work started in
// processing captures it and must compare it again before applying a result.
type PaymentSession struct {
	ID              string
	BuyerID         string
	Cart            *Cart
	Step            Step
	RawPhone        string
	NormalizedPhone string
	Network         Network
	OrderID         string
	LastError       error
	UpdatedAt       time.Time

	generation uint64
}

func NewPaymentSession(id, buyerID string) *PaymentSession {
	return &PaymentSession{
		ID:        id,
		BuyerID:   buyerID,
		Cart:      NewCart(),
		Step:      StepCart,
		UpdatedAt: time.Now(),
	}
}

func (s *PaymentSession) Generation() uint64 {
	return s.generation
}

// Current reports whether work captured at generation gen may still act on the session.
func (s *PaymentSession) Current(gen uint64) bool {
	return s.Step == StepProcessing && s.generation == gen
}

func (s *PaymentSession) transitionError(to Step) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Step, to)
}

func (s *PaymentSession) moveTo(step Step) {
	if s.Step == StepProcessing && step != StepProcessing {
		s.generation++
	}
	s.Step = step
	s.UpdatedAt = time.Now()
}

func (s *PaymentSession) BeginCheckout() error {
	if s.Step != StepCart {
		return s.transitionError(StepPhoneEntry)
	}
	if s.BuyerID == "" {
		return ErrNotAuthenticated
	}
	if s.Cart.IsEmpty() {
		return ErrEmptyCart
	}
	s.LastError = nil
	s.moveTo(StepPhoneEntry)
	return nil
}

// AcceptPhone records a validated number and moves on to confirm.
func (s *PaymentSession) AcceptPhone(raw, normalized string, network Network) error {
	if s.Step != StepPhoneEntry {
		return s.transitionError(StepConfirm)
	}
	s.RawPhone = raw
	s.NormalizedPhone = normalized
	s.Network = network
	s.LastError = nil
	s.moveTo(StepConfirm)
	return nil
}

// RejectPhone keeps the session in phone_entry and records why the number was refused.
func (s *PaymentSession) RejectPhone(raw string, reason error) error {
	if s.Step != StepPhoneEntry {
		return s.transitionError(StepPhoneEntry)
	}
	s.RawPhone = raw
	s.NormalizedPhone = ""
	s.LastError = reason
	s.UpdatedAt = time.Now()
	return nil
}

// Confirm enters processing and returns the generation the payment work must carry.
func (s *PaymentSession) Confirm() (uint64, error) {
	if s.Step != StepConfirm {
		return 0, s.transitionError(StepProcessing)
	}
	s.OrderID = ""
	s.LastError = nil
	s.moveTo(StepProcessing)
	return s.generation, nil
}

func (s *PaymentSession) Accept(orderID string) error {
	if s.Step != StepProcessing || s.OrderID != "" {
		return s.transitionError(StepProcessing)
	}
	s.OrderID = orderID
	s.UpdatedAt = time.Now()
	return nil
}

func (s *PaymentSession) Succeed() error {
	if s.Step != StepProcessing {
		return s.transitionError(StepSuccess)
	}
	s.LastError = nil
	s.moveTo(StepSuccess)
	return nil
}

func (s *PaymentSession) Fail(err error) error {
	if s.Step != StepProcessing {
		return s.transitionError(StepError)
	}
	s.LastError = err
	s.moveTo(StepError)
	return nil
}

func (s *PaymentSession) Retry() error {
	if s.Step != StepError {
		return s.transitionError(StepPhoneEntry)
	}
	s.LastError = nil
	s.OrderID = ""
	s.moveTo(StepPhoneEntry)
	return nil
}

func (s *PaymentSession) Reset() error {
	if s.Step != StepError && s.Step != StepSuccess {
		return s.transitionError(StepCart)
	}
	s.LastError = nil
	s.OrderID = ""
	s.RawPhone = ""
	s.NormalizedPhone = ""
	s.Network = ""
	s.moveTo(StepCart)
	return nil
}

// Abandon ends a session from any step. A processing session is moved to error so pending work is discarded.
func (s *PaymentSession) Abandon() {
	if s.Step == StepProcessing {
		s.LastError = nil
		s.moveTo(StepError)
	}
}
