// Package pricing classifies free-form pricing text into a fixed set of models.
package pricing

import (
	"regexp"
	"strings"
)

// Pricing models.
const (
	Free       = "free"
	Freemium   = "freemium"
	FreeTrial  = "free_trial"
	Paid       = "paid"
	OpenSource = "open_source"
)

// Models lists every valid pricing model.
var Models = []string{Free, Freemium, FreeTrial, Paid, OpenSource}

var (
	paidPattern       = regexp.MustCompile(`(?i)\bpaid\b|[$€£¥]|/\s*mo(nth)?\b|\bper month\b|\bsubscription\b`)
	openSourcePattern = regexp.MustCompile(`(?i)\bopen[\s-]?source\b`)
)

// Classify maps text onto a pricing model. Keywords are checked in a fixed
// order and the first hit wins; text without any keyword is Free.
func Classify(text string) string {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "freemium"):
		return Freemium
	case strings.Contains(lower, "trial"):
		return FreeTrial
	case paidPattern.MatchString(lower):
		return Paid
	case openSourcePattern.MatchString(lower):
		return OpenSource
	}

	return Free
}

// IsValid reports whether value is one of the enumerated models.
func IsValid(value string) bool {
	for _, m := range Models {
		if value == m {
			return true
		}
	}

	return false
}

// Coerce keeps a valid model and otherwise re-infers one from the value and
// the surrounding description text.
func Coerce(value string, context ...string) string {
	trimmed := strings.TrimSpace(value)
	if IsValid(trimmed) {
		return trimmed
	}

	return Classify(trimmed + " " + strings.Join(context, " "))
}
