package service

import (
	"strings"
	"unicode"
)

// labelStrip lists the characters removed from labels before matching.
const labelStrip = "()[]{}<> "

// NormalizeLabel lower-cases a label and drops brackets and spaces so that
// "Gene (Liver)" and "gene liver" compare equal. It does not depend on the
// process locale.
func NormalizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(labelStrip, r) {
			return -1
		}
		return unicode.ToLower(r)
	}, label)
}

// NormalizeLabels normalizes every label and keeps the input order, so
// index i of the result belongs to labels[i].
func NormalizeLabels(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = NormalizeLabel(l)
	}
	return out
}
