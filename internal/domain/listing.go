package domain

import "time"

type FoodListing struct {
	ID                string    `json:"id"`
	VendorID          string    `json:"vendor_id"`
	Title             string    `json:"title"`
	QuantityAvailable int       `json:"quantity_available"`
	Price             Amount    `json:"price"`
	ExpiryTimestamp   time.Time `json:"expiry_timestamp"`
	IsActive          bool      `json:"is_active"`
}

// ListingWithVendor carries the selling vendor's verification state alongside the listing.
type ListingWithVendor struct {
	FoodListing
	VendorStatus VerificationStatus `json:"vendor_status"`
}

// Purchasable reports whether the listing may be put into a cart at time now.
func (l *ListingWithVendor) Purchasable(now time.Time) error {
	if !l.VendorStatus.CanSell() {
		return ErrVendorNotVerified
	}
	if !l.IsActive || !l.ExpiryTimestamp.After(now) || l.QuantityAvailable < 1 {
		return ErrListingUnavailable
	}
	return nil
}
