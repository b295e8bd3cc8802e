// Package textutil holds the tokenizer shared by routing, tree indexing and
// component matching.
package textutil

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it on whitespace and punctuation.
// Underscores stay inside tokens so identifiers like module_x survive.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// WordSet returns the distinct tokens of s.
func WordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(s) {
		set[tok] = true
	}
	return set
}

// Words returns the whitespace-separated fields of s, lowercased and
// trimmed of surrounding punctuation. Unlike Tokenize it keeps inner
// hyphens, dots and slashes, so "auth-core" stays one word.
func Words(s string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
