package phone

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/domain"
)

func TestNormalize_AcceptedForms(t *testing.T) {
	inputs := []string{
		"0788123456",
		"788123456",
		"250788123456",
		"+250788123456",
		"+250 788 123 456",
		"(078) 812-3456",
	}
	for _, in := range inputs {
		got, err := Normalize(in)
		require.NoError(t, err, in)
		assert.Equal(t, "+250788123456", got, in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"0722000111", "730000111", "250790000111", "+250781234567"} {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestValidate_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"abc",
		"0700000000",
		"078812345",
		"07881234567",
		"25078812345",
		"+254788123456",
		"0748123456",
		"12345678",
	} {
		err := Validate(in)
		require.Error(t, err, in)

		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr), in)
		assert.Equal(t, "phone", vErr.Field)
		assert.NotEmpty(t, vErr.Reason)
		assert.False(t, IsValid(in))
	}
}

func TestValidate_PrefixReason(t *testing.T) {
	err := Validate("0700000000")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reason, "078")
}

func TestDetectNetwork(t *testing.T) {
	n, ok := DetectNetwork("+250788123456")
	require.True(t, ok)
	assert.Equal(t, domain.NetworkProviderA, n)

	n, ok = DetectNetwork("0731234567")
	require.True(t, ok)
	assert.Equal(t, domain.NetworkProviderB, n)

	_, ok = DetectNetwork("0700000000")
	assert.False(t, ok)
}
