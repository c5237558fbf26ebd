package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"comma decimal", "1,99 €", "1.99"},
		{"thousands and decimal", "1.299,00 €", "1299"},
		{"large thousands", "12.345.678,90", "12345678.9"},
		{"lone dot is thousands", "1.299", "1299"},
		{"comma without two decimals is thousands", "1,299", "1299"},
		{"multiple commas are thousands", "1,299,000", "1299000"},
		{"plain integer", "42 €", "42"},
		{"prefixed text", "ab 89,90 €", "89.9"},
		{"trailing separator trimmed", "129,", "129"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			price, err := ParsePrice(tc.input)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, price.String())
		})
	}
}

func TestParsePriceRejectsNonNumeric(t *testing.T) {
	_, err := ParsePrice("Preis auf Anfrage")
	assert.Error(t, err)

	_, err = ParsePrice("")
	assert.Error(t, err)

	_, err = ParsePrice(",.")
	assert.Error(t, err)
}

func TestFormatPrice(t *testing.T) {
	price, err := ParsePrice("1.234,56 €")
	assert.NoError(t, err)
	assert.Equal(t, "1.234,56", FormatPrice(price))

	small, err := ParsePrice("9,90")
	assert.NoError(t, err)
	assert.Equal(t, "9,90", FormatPrice(small))

	big, err := ParsePrice("12.345.678,90")
	assert.NoError(t, err)
	assert.Equal(t, "12.345.678,90", FormatPrice(big))
}
