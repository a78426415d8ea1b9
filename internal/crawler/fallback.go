package crawler

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"toolharvest/pkg/utils"
)

// Strategy is one step of a fallback chain.
type Strategy[T any] struct {
	Name    string
	Resolve func(doc *goquery.Document) T
}

// FirstValid runs strategies in order and returns the first result accepted
// by valid, along with the winning strategy's name. When none qualifies it
// returns the zero value and "".
func FirstValid[T any](doc *goquery.Document, valid func(T) bool, strategies ...Strategy[T]) (T, string) {
	for _, s := range strategies {
		v := s.Resolve(doc)
		if valid(v) {
			return v, s.Name
		}
	}

	var zero T

	return zero, ""
}

// longerThan accepts trimmed strings with more than n runes.
func longerThan(n int) func(string) bool {
	return func(s string) bool {
		return utf8.RuneCountInString(strings.TrimSpace(s)) > n
	}
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func nonEmptyList(list []string) bool {
	return len(list) > 0
}

// textOf returns a strategy yielding the normalized text of the first
// element matching selector whose text is accepted by valid.
func textOf(selector string, valid func(string) bool) Strategy[string] {
	return Strategy[string]{
		Name: selector,
		Resolve: func(doc *goquery.Document) string {
			var text string

			doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				candidate := utils.NormalizeWhitespace(sel.Text())
				if valid(candidate) {
					text = candidate

					return false
				}

				return true
			})

			return text
		},
	}
}

// attrOf returns a strategy yielding attr of the first element matching selector.
func attrOf(selector, attr string) Strategy[string] {
	return Strategy[string]{
		Name: selector + "@" + attr,
		Resolve: func(doc *goquery.Document) string {
			return utils.NormalizeWhitespace(doc.Find(selector).First().AttrOr(attr, ""))
		},
	}
}

// textChain builds one text strategy per selector.
func textChain(valid func(string) bool, selectors ...string) []Strategy[string] {
	strategies := make([]Strategy[string], 0, len(selectors))
	for _, selector := range selectors {
		strategies = append(strategies, textOf(selector, valid))
	}

	return strategies
}
