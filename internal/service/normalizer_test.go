package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Brackets and spaces", "Gene (Liver)", "geneliver"},
		{"All bracket kinds", "a[b]{c}<d>", "abcd"},
		{"Already normalized", "kcne4", "kcne4"},
		{"Digits kept", "ACOX 2", "acox2"},
		{"Punctuation kept", "gene-1_x.y", "gene-1_x.y"},
		{"Empty", "", ""},
		{"Only stripped characters", " ( ) ", ""},
		{"Non-ASCII lower-cased", "ÄBC", "äbc"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeLabel(tc.input))
		})
	}
}

func TestNormalizeLabel_Idempotent(t *testing.T) {
	for _, in := range []string{"Gene (Liver)", "  X  Y ", "<Tag>", "plain"} {
		once := NormalizeLabel(in)
		assert.Equal(t, once, NormalizeLabel(once), "input %q", in)
	}
}

func TestNormalizeLabels_KeepsOrder(t *testing.T) {
	in := []string{"ID", "Gene (A)", "gene a"}
	out := NormalizeLabels(in)

	assert.Equal(t, []string{"id", "genea", "genea"}, out)
	assert.Equal(t, "ID", in[0], "input must not be modified")
}
