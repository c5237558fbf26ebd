package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// priceRun matches the first run of digits and separators in a raw price
// text ("ab 1.299,00 €" -> "1.299,00").
var priceRun = regexp.MustCompile(`[\d.,]+`)

// ParsePrice parses a marketplace price text in European formatting.
// Separator rules: with both "." and "," present, "." is the thousands
// separator and "," the decimal mark; with only a "," it is a decimal mark
// exactly when two digits follow it, otherwise a thousands separator; a
// lone "." is always a thousands separator.
func ParsePrice(text string) (decimal.Decimal, error) {
	run := priceRun.FindString(text)
	run = strings.Trim(run, ".,")
	if run == "" {
		return decimal.Zero, fmt.Errorf("no digits in price text %q", text)
	}

	hasDot := strings.Contains(run, ".")
	hasComma := strings.Contains(run, ",")

	switch {
	case hasDot && hasComma:
		run = strings.ReplaceAll(run, ".", "")
		run = strings.Replace(run, ",", ".", 1)
	case hasComma:
		idx := strings.LastIndex(run, ",")
		if strings.Count(run, ",") == 1 && len(run)-idx-1 == 2 {
			run = strings.Replace(run, ",", ".", 1)
		} else {
			run = strings.ReplaceAll(run, ",", "")
		}
	case hasDot:
		run = strings.ReplaceAll(run, ".", "")
	}

	price, err := decimal.NewFromString(run)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", text, err)
	}
	return price, nil
}

// FormatPrice renders a price back into European formatting with a comma
// decimal mark and dot thousands separators, two decimal places.
func FormatPrice(price decimal.Decimal) string {
	fixed := price.StringFixed(2)
	parts := strings.SplitN(fixed, ".", 2)
	whole, frac := parts[0], parts[1]

	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var groups []string
	for len(whole) > 3 {
		groups = append([]string{whole[len(whole)-3:]}, groups...)
		whole = whole[:len(whole)-3]
	}
	groups = append([]string{whole}, groups...)

	out := strings.Join(groups, ".") + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}
