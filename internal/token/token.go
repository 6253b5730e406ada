// Package token mints and formats the 20-digit numeric codes used both as
// topup receipts and as prepaid bearer tokens.
package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeLength is the fixed length of a token code in decimal digits.
const CodeLength = 20

var codeSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(CodeLength), nil)

// Generate returns a fresh code sampled uniformly from [0, 10^20),
// zero-padded to 20 digits. Uniqueness is the caller's problem: stores keep
// a unique index on token_code and minting paths retry on collision.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to sample token code: %w", err)
	}
	return fmt.Sprintf("%020s", n.String()), nil
}

// Format renders a code as five 4-digit groups for display.
func Format(code string) string {
	if len(code) != CodeLength {
		return code
	}
	groups := make([]string, 0, 5)
	for i := 0; i < CodeLength; i += 4 {
		groups = append(groups, code[i:i+4])
	}
	return strings.Join(groups, " ")
}

// Normalize strips display spacing from a user-entered code.
func Normalize(code string) string {
	return strings.ReplaceAll(code, " ", "")
}

// Valid reports whether a normalized code is exactly 20 ASCII digits.
func Valid(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
