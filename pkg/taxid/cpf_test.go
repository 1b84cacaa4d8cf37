package taxid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCPF(t *testing.T) {
	cases := map[string]bool{
		"529.982.247-25": true,
		"52998224725":    true,
		"111.444.777-35": true,
		"11111111111":    false,
		"00000000000":    false,
		"529.982.247-24": false,
		"52998224735":    false,
		"5299822472":     false,
		"529982247250":   false,
		"":               false,
		"abc":            false,
	}
	for input, want := range cases {
		assert.Equal(t, want, ValidCPF(input), input)
	}
}

func TestNormalizeAndFormatCPF(t *testing.T) {
	digits, ok := NormalizeCPF(" 529.982.247-25 ")
	assert.True(t, ok)
	assert.Equal(t, "52998224725", digits)
	assert.Equal(t, "529.982.247-25", FormatCPF(digits))

	_, ok = NormalizeCPF("11111111111")
	assert.False(t, ok)
	assert.Equal(t, "123", FormatCPF("123"))
}
