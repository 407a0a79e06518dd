// Package core holds the expense domain model: validation, amount parsing
// and currency display formatting.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DisplayCurrency is the fixed display currency. Amounts are stored
// currency-agnostic and only rendered with this symbol.
const DisplayCurrency = "USD"

const currencySymbol = "$"

var supportedLocales = []language.Tag{
	language.AmericanEnglish, // default
	language.Hebrew,
	language.Italian,
}

var localeMatcher = language.NewMatcher(supportedLocales)

func init() {
	// Amounts travel as JSON numbers, matching the remote store's column type.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a decimal string to an amount, accepting both dot and
// comma decimal separators. Non-numeric or non-positive values are rejected
// with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// MatchLocale resolves a locale hint (query parameter or Accept-Language
// value) to a supported display locale, falling back to en-US.
func MatchLocale(hint string) language.Tag {
	if strings.TrimSpace(hint) == "" {
		return language.AmericanEnglish
	}
	tags, _, err := language.ParseAcceptLanguage(hint)
	if err != nil || len(tags) == 0 {
		return language.AmericanEnglish
	}
	_, idx, _ := localeMatcher.Match(tags...)
	return supportedLocales[idx]
}

// FormatCurrency renders an amount in the fixed display currency using the
// given locale's digit grouping. Output is deterministic for a given
// (amount, locale) pair.
func FormatCurrency(amount decimal.Decimal, locale language.Tag) string {
	p := message.NewPrinter(locale)
	return p.Sprintf("%s%.2f", currencySymbol, amount.InexactFloat64())
}
