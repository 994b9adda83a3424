package domain

import "fmt"

type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationVerified  VerificationStatus = "verified"
	VerificationRejected  VerificationStatus = "rejected"
	VerificationSuspended VerificationStatus = "suspended"
)

// ParseVerificationStatus maps a stored value onto the closed set. A missing value is pending;
// anything unrecognised is an error and never counts as verified.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch VerificationStatus(s) {
	case "":
		return VerificationPending, nil
	case VerificationPending, VerificationVerified, VerificationRejected, VerificationSuspended:
		return VerificationStatus(s), nil
	default:
		return "", fmt.Errorf("unknown verification status %q", s)
	}
}

func (v VerificationStatus) CanSell() bool {
	switch v {
	case VerificationVerified:
		return true
	case VerificationPending, VerificationRejected, VerificationSuspended:
		return false
	default:
		return false
	}
}

type ProfileRole string

const (
	RoleStudent ProfileRole = "student"
	RoleVendor  ProfileRole = "vendor"
	RoleAdmin   ProfileRole = "admin"
)

type Profile struct {
	ID                 string
	FullName           string
	Phone              string
	Role               ProfileRole
	VerificationStatus VerificationStatus
}
