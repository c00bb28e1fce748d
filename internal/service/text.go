package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and collapses whitespace, so
// "Cartão  de CRÉDITO" becomes "cartao de credito".
func Fold(s string) string {
	// transform.Chain keeps state between calls: build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// tokens splits an already folded string on anything that is not a letter or digit.
func tokens(folded string) []string {
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Words folds s and returns its letter/digit runs, so "Vendi, 2 cafés!"
// becomes ["vendi", "2", "cafes"].
func Words(s string) []string {
	return tokens(Fold(s))
}
