package tariff

import (
	"errors"
	"math"
)

// VATRate is the VAT applied to all electricity purchases.
const VATRate = 0.18

// Meter categories. These match the values stored in meters.category.
const (
	CategoryResidential = "residential"
	CategoryCommercial  = "commercial"
)

var (
	// ErrInvalidAmount is returned when a monetary or energy input is
	// negative, NaN or infinite.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCategory is returned for an unknown tariff category.
	ErrInvalidCategory = errors.New("invalid tariff category")
)

// Tier is a half-open energy band [Min, Max) with a flat price per kWh.
// The final tier of every schedule has Max = +Inf.
type Tier struct {
	Min   float64
	Max   float64
	Price float64
	Name  string
}

// RURA 2025 tariff schedule. The constants are contractual; collaborators
// that display prices must read them from here rather than re-declare them.
var (
	residentialTiers = []Tier{
		{Min: 0, Max: 20, Price: 89, Name: "Lifeline (89 RWF)"},
		{Min: 20, Max: 50, Price: 310, Name: "Tier 2 (310 RWF)"},
		{Min: 50, Max: math.Inf(1), Price: 369, Name: "Standard (369 RWF)"},
	}

	commercialTiers = []Tier{
		{Min: 0, Max: 100, Price: 355, Name: "Tier 1 (355 RWF)"},
		{Min: 100, Max: math.Inf(1), Price: 376, Name: "Tier 2 (376 RWF)"},
	}
)

// Tiers returns the ordered tier schedule for a category.
func Tiers(category string) ([]Tier, error) {
	switch category {
	case CategoryResidential:
		return residentialTiers, nil
	case CategoryCommercial:
		return commercialTiers, nil
	default:
		return nil, ErrInvalidCategory
	}
}

// Result is the outcome of a forward (money to energy) calculation.
type Result struct {
	Kwh       float64
	Taxes     float64
	NewCursor float64
}

// MoneyToKwh converts a VAT-inclusive payment into energy, walking the tier
// schedule from the cursor (cumulative kWh purchased this billing period).
// A purchase that lands exactly on a tier boundary leaves the cursor on the
// boundary; the next purchase starts in the next tier.
func MoneyToKwh(amountPaid, cursor float64, category string) (Result, error) {
	if !nonNegativeFinite(amountPaid) || !nonNegativeFinite(cursor) {
		return Result{}, ErrInvalidAmount
	}
	tiers, err := Tiers(category)
	if err != nil {
		return Result{}, err
	}

	net := amountPaid / (1 + VATRate)
	res := Result{Taxes: amountPaid - net, NewCursor: cursor}

	for _, tier := range tiers {
		if net <= 0 {
			break
		}
		if res.NewCursor >= tier.Max {
			continue
		}
		available := tier.Max - res.NewCursor
		costFull := available * tier.Price
		if net >= costFull {
			res.Kwh += available
			res.NewCursor += available
			net -= costFull
			continue
		}
		bought := net / tier.Price
		res.Kwh += bought
		res.NewCursor += bought
		net = 0
	}

	if amountPaid == 0 {
		res.Taxes = 0
	}
	return res, nil
}

// KwhToMoney is the reverse calculation: the VAT-inclusive price of buying
// kwhBalance units starting at cursor. Together with MoneyToKwh it round-trips
// within floating-point tolerance.
func KwhToMoney(kwhBalance, cursor float64, category string) (float64, error) {
	if !nonNegativeFinite(kwhBalance) || !nonNegativeFinite(cursor) {
		return 0, ErrInvalidAmount
	}
	tiers, err := Tiers(category)
	if err != nil {
		return 0, err
	}
	if kwhBalance == 0 {
		return 0, nil
	}

	var net float64
	remaining := kwhBalance
	pos := cursor

	for _, tier := range tiers {
		if remaining <= 0 {
			break
		}
		if pos >= tier.Max {
			continue
		}
		inTier := math.Min(remaining, tier.Max-pos)
		net += inTier * tier.Price
		remaining -= inTier
		pos += inTier
	}

	return net * (1 + VATRate), nil
}

// TierInfo describes the tier bracket containing a cursor; display only.
type TierInfo struct {
	Name  string
	Price float64
	Index int
}

// CurrentTier returns the tier bracket containing the cursor.
func CurrentTier(cursor float64, category string) (TierInfo, error) {
	if !nonNegativeFinite(cursor) {
		return TierInfo{}, ErrInvalidAmount
	}
	tiers, err := Tiers(category)
	if err != nil {
		return TierInfo{}, err
	}
	for i, tier := range tiers {
		if cursor >= tier.Min && cursor < tier.Max {
			return TierInfo{Name: tier.Name, Price: tier.Price, Index: i}, nil
		}
	}
	last := len(tiers) - 1
	return TierInfo{Name: tiers[last].Name, Price: tiers[last].Price, Index: last}, nil
}

func nonNegativeFinite(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
