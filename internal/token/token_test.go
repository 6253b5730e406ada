package token_test

import (
	"testing"

	"github.com/campusvolt/prepaid-engine/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 200; i++ {
		code, err := token.Generate()
		require.NoError(t, err)
		assert.Len(t, code, token.CodeLength)
		assert.True(t, token.Valid(code), "generated code %q is not all digits", code)
		seen[code] = struct{}{}
	}

	// 200 draws from a 10^20 space colliding would mean a broken sampler.
	assert.Len(t, seen, 200)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1234 5678 9012 3456 7890", token.Format("12345678901234567890"))
	// Codes of unexpected length pass through untouched.
	assert.Equal(t, "12345", token.Format("12345"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "12345678901234567890", token.Normalize("1234 5678 9012 3456 7890"))
	assert.Equal(t, "12345678901234567890", token.Normalize("12345678901234567890"))
}

func TestValid(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"12345678901234567890", true},
		{"00000000000000000000", true},
		{"1234567890123456789", false},   // 19 digits
		{"123456789012345678901", false}, // 21 digits
		{"1234567890123456789a", false},
		{"1234 5678 9012 3456 7890", false}, // spacing must be normalized first
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, token.Valid(tt.code), "code %q", tt.code)
	}
}
