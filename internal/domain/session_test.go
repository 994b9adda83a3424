package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionAtConfirm(t *testing.T) *PaymentSession {
	t.Helper()
	s := NewPaymentSession("s1", "buyer-1")
	s.Cart.Add("rolex", "v1", 5000)
	require.NoError(t, s.BeginCheckout())
	require.NoError(t, s.AcceptPhone("0788123456", "+250788123456", NetworkProviderA))
	return s
}

func TestPaymentSession_HappyPath(t *testing.T) {
	s := sessionAtConfirm(t)
	assert.Equal(t, StepConfirm, s.Step)

	gen, err := s.Confirm()
	require.NoError(t, err)
	assert.True(t, s.Current(gen))

	require.NoError(t, s.Accept("abc123"))
	assert.Equal(t, "abc123", s.OrderID)
	assert.True(t, s.Current(gen))

	require.NoError(t, s.Succeed())
	assert.Equal(t, StepSuccess, s.Step)
	assert.False(t, s.Current(gen))

	require.NoError(t, s.Reset())
	assert.Equal(t, StepCart, s.Step)
	assert.Empty(t, s.NormalizedPhone)
}

func TestPaymentSession_BeginCheckoutGuards(t *testing.T) {
	s := NewPaymentSession("s1", "")
	s.Cart.Add("a", "v", 100)
	assert.ErrorIs(t, s.BeginCheckout(), ErrNotAuthenticated)

	s = NewPaymentSession("s1", "buyer-1")
	assert.ErrorIs(t, s.BeginCheckout(), ErrEmptyCart)
	assert.Equal(t, StepCart, s.Step)
}

func TestPaymentSession_RejectPhoneStaysInPhoneEntry(t *testing.T) {
	s := NewPaymentSession("s1", "buyer-1")
	s.Cart.Add("a", "v", 100)
	require.NoError(t, s.BeginCheckout())

	reason := &ValidationError{Field: "phone", Reason: "bad"}
	require.NoError(t, s.RejectPhone("0700000000", reason))
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.Equal(t, reason, s.LastError)
}

func TestPaymentSession_ErrorRetryAndStaleGeneration(t *testing.T) {
	s := sessionAtConfirm(t)
	gen, err := s.Confirm()
	require.NoError(t, err)

	require.NoError(t, s.Fail(&PollTimeout{OrderID: "abc123", Attempts: 3}))
	assert.Equal(t, StepError, s.Step)
	assert.False(t, s.Current(gen))

	require.NoError(t, s.Retry())
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.Nil(t, s.LastError)

	require.NoError(t, s.AcceptPhone("0788123456", "+250788123456", NetworkProviderA))
	gen2, err := s.Confirm()
	require.NoError(t, err)
	assert.NotEqual(t, gen, gen2)
	assert.False(t, s.Current(gen))
	assert.True(t, s.Current(gen2))
}

func TestPaymentSession_InvalidTransitions(t *testing.T) {
	s := NewPaymentSession("s1", "buyer-1")

	_, err := s.Confirm()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.Succeed(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(errors.New("x")), ErrInvalidTransition)
	assert.ErrorIs(t, s.Retry(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Reset(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Accept("o1"), ErrInvalidTransition)

	s = sessionAtConfirm(t)
	_, err = s.Confirm()
	require.NoError(t, err)
	require.NoError(t, s.Accept("o1"))
	assert.ErrorIs(t, s.Accept("o2"), ErrInvalidTransition)
	assert.ErrorIs(t, s.Reset(), ErrInvalidTransition)
}

func TestPaymentSession_AbandonInvalidatesProcessing(t *testing.T) {
	s := sessionAtConfirm(t)
	gen, err := s.Confirm()
	require.NoError(t, err)

	s.Abandon()
	assert.False(t, s.Current(gen))
	assert.Equal(t, StepError, s.Step)
}
