package utils

import "strings"

// ParseSymbols splits a comma-separated list of tickers, trimming, upper-casing
// and de-duplicating while preserving first-seen order.
// Returns nil for empty/whitespace-only input.
func ParseSymbols(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	seen := make(map[string]bool)
	var result []string
	for _, v := range strings.Split(s, ",") {
		symbol := NormalizeSymbol(v)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		result = append(result, symbol)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// UniqueSymbols normalizes a slice of tickers, dropping blanks and duplicates
// while preserving first-seen order.
func UniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	result := make([]string, 0, len(symbols))
	for _, v := range symbols {
		symbol := NormalizeSymbol(v)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		result = append(result, symbol)
	}
	return result
}
