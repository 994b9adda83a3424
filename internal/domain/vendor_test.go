package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerificationStatus(t *testing.T) {
	v, err := ParseVerificationStatus("")
	require.NoError(t, err)
	assert.Equal(t, VerificationPending, v)

	v, err = ParseVerificationStatus("verified")
	require.NoError(t, err)
	assert.True(t, v.CanSell())

	for _, s := range []string{"pending", "rejected", "suspended"} {
		v, err := ParseVerificationStatus(s)
		require.NoError(t, err)
		assert.False(t, v.CanSell(), s)
	}

	_, err = ParseVerificationStatus("approved")
	assert.Error(t, err)
	assert.False(t, VerificationStatus("1").CanSell())
}

func TestListingWithVendor_Purchasable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := ListingWithVendor{
		FoodListing: FoodListing{
			ID:                "l1",
			QuantityAvailable: 2,
			ExpiryTimestamp:   now.Add(time.Hour),
			IsActive:          true,
		},
		VendorStatus: VerificationVerified,
	}
	assert.NoError(t, l.Purchasable(now))

	l.VendorStatus = VerificationSuspended
	assert.ErrorIs(t, l.Purchasable(now), ErrVendorNotVerified)

	l.VendorStatus = VerificationVerified
	l.ExpiryTimestamp = now.Add(-time.Minute)
	assert.ErrorIs(t, l.Purchasable(now), ErrListingUnavailable)

	l.ExpiryTimestamp = now.Add(time.Hour)
	l.QuantityAvailable = 0
	assert.ErrorIs(t, l.Purchasable(now), ErrListingUnavailable)
}

func TestErrorKindAndUserMessage(t *testing.T) {
	timeout := &PollTimeout{OrderID: "abc123", Attempts: 40}
	assert.Equal(t, KindPollTimeout, ErrorKind(timeout))
	assert.NotContains(t, UserMessage(timeout), "fail")

	reconcile := &ReconciliationError{OrderID: "abc123", Lines: []LineError{{ItemID: "l1", Quantity: 1, Err: ErrInsufficientStock}}}
	assert.Equal(t, KindReconciliation, ErrorKind(reconcile))
	assert.Contains(t, reconcile.Error(), "l1")

	validation := &ValidationError{Field: "phone", Reason: "Enter a Rwandan mobile number"}
	assert.Equal(t, KindValidation, ErrorKind(validation))
	assert.Equal(t, "Enter a Rwandan mobile number", UserMessage(validation))

	assert.Equal(t, KindGateway, ErrorKind(&GatewayRejection{Message: "insufficient balance"}))
	assert.Equal(t, "insufficient balance", UserMessage(&GatewayRejection{Message: "insufficient balance"}))
	assert.Equal(t, KindInternal, ErrorKind(ErrEmptyCart))
}
