package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidID(t *testing.T) {
	valid := []string{
		"esc_1a2b3c",
		"dsp_A1b2C3d4",
		"bkg_order-2024",
		"whk_0f9e8d7c6b5a",
	}
	for _, id := range valid {
		assert.True(t, IsValidID(id), "expected %q to be valid", id)
	}

	invalid := []string{
		"",
		"noseparator",
		"_abc123",
		"ESC_1a2b3c",
		"esc_ab",
		"esc_has spaces",
		"esc_semi;colon",
		"averyverylongprefix_1a2b3c",
	}
	for _, id := range invalid {
		assert.False(t, IsValidID(id), "expected %q to be invalid", id)
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 100))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 100))
}

func TestValidateCollectsErrors(t *testing.T) {
	errs := Validate(
		Required("reason", ""),
		PositiveAmount("amountCents", 0),
		ValidCurrency("currency", "usd"),
	)
	assert.Len(t, errs, 3)
	assert.Equal(t, "reason", errs[0].Field)
	assert.Contains(t, errs.Error(), "reason")

	assert.Empty(t, Validate(
		Required("reason", "service not delivered"),
		PositiveAmount("amountCents", 100),
		ValidCurrency("currency", "USD"),
	))
}

func TestFieldValidators(t *testing.T) {
	assert.Nil(t, Required("f", "x")())
	assert.NotNil(t, Required("f", "   ")())

	assert.Nil(t, ValidID("f", "")()) // optional unless Required
	assert.Nil(t, ValidID("f", "esc_1a2b3c")())
	assert.NotNil(t, ValidID("f", "not an id")())

	assert.Nil(t, MaxLength("f", "short", 10)())
	assert.NotNil(t, MaxLength("f", "this is far too long", 10)())

	assert.Nil(t, NonNegativeAmount("f", 0)())
	assert.NotNil(t, NonNegativeAmount("f", -1)())

	assert.Nil(t, PositiveAmount("f", 1)())
	assert.NotNil(t, PositiveAmount("f", 0)())

	assert.Nil(t, ValidCurrency("f", "EUR")())
	assert.NotNil(t, ValidCurrency("f", "EURO")())
	assert.NotNil(t, ValidCurrency("f", "eur")())
}
