// Package phone validates and formats Rwandan mobile numbers.
package phone

import (
	"strings"

	"checkout/internal/domain"
)

const (
	countryCode     = "250"
	nationalLength  = 9
	canonicalPrefix = "+" + countryCode
)

var networkByPrefix = map[string]domain.Network{
	"78": domain.NetworkProviderA,
	"79": domain.NetworkProviderA,
	"72": domain.NetworkProviderB,
	"73": domain.NetworkProviderB,
}

func digitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func invalid(reason string) error {
	return &domain.ValidationError{Field: "phone", Reason: reason}
}

// national returns the 9-digit subscriber number for any accepted form.
func national(raw string) (string, error) {
	d := digitsOnly(raw)
	if d == "" {
		return "", invalid("Enter your mobile money number.")
	}

	switch {
	case len(d) == nationalLength+len(countryCode) && strings.HasPrefix(d, countryCode):
		d = d[len(countryCode):]
	case len(d) == nationalLength+1 && d[0] == '0':
		d = d[1:]
	case len(d) == nationalLength:
	default:
		return "", invalid("Enter a 10-digit Rwandan number such as 0788123456.")
	}

	if _, ok := networkByPrefix[d[:2]]; !ok {
		return "", invalid("Mobile money numbers must start with 072, 073, 078 or 079.")
	}
	return d, nil
}

// Validate returns a *domain.ValidationError when raw is not a Rwandan mobile number.
func Validate(raw string) error {
	_, err := national(raw)
	return err
}

func IsValid(raw string) bool {
	return Validate(raw) == nil
}

// Normalize returns the +250XXXXXXXXX form of raw.
func Normalize(raw string) (string, error) {
	n, err := national(raw)
	if err != nil {
		return "", err
	}
	return canonicalPrefix + n, nil
}

// DetectNetwork reports the mobile-money provider serving a number.
func DetectNetwork(raw string) (domain.Network, bool) {
	n, err := national(raw)
	if err != nil {
		return "", false
	}
	network, ok := networkByPrefix[n[:2]]
	return network, ok
}
