package validator

import (
	"fmt"
	"math"

	"github.com/campusvolt/prepaid-engine/internal/tariff"
	"github.com/campusvolt/prepaid-engine/internal/token"
)

// Validator screens purchase and redemption inputs before they reach the
// pricing kernel or the stores. The amount cap guards against fat-fingered
// or hostile payments.
type Validator struct {
	maxAmount float64
}

// NewValidator creates a validator with the given absurdity cap in RWF.
func NewValidator(maxAmount float64) *Validator {
	return &Validator{maxAmount: maxAmount}
}

// Amount validates a monetary payment.
func (v *Validator) Amount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: amount must be a non-negative finite number", tariff.ErrInvalidAmount)
	}
	if amount > v.maxAmount {
		return fmt.Errorf("%w: amount %.2f exceeds limit %.0f", tariff.ErrInvalidAmount, amount, v.maxAmount)
	}
	return nil
}

// Energy validates a kWh quantity (token denominations, initial balances).
func (v *Validator) Energy(kwh float64) error {
	if math.IsNaN(kwh) || math.IsInf(kwh, 0) || kwh < 0 {
		return fmt.Errorf("%w: energy must be a non-negative finite number", tariff.ErrInvalidAmount)
	}
	return nil
}

// Category validates a tariff category.
func (v *Validator) Category(category string) error {
	if _, err := tariff.Tiers(category); err != nil {
		return fmt.Errorf("%w: %q", tariff.ErrInvalidCategory, category)
	}
	return nil
}

// TokenCode validates and normalizes a user-entered token code. Display
// spacing is tolerated; anything other than 20 decimal digits is rejected.
func (v *Validator) TokenCode(code string) (string, error) {
	normalized := token.Normalize(code)
	if !token.Valid(normalized) {
		return "", fmt.Errorf("token code must be exactly %d digits", token.CodeLength)
	}
	return normalized, nil
}
