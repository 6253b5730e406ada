package service

import (
	"context"
	"fmt"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/logging"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/campusvolt/prepaid-engine/internal/tariff"
	"github.com/campusvolt/prepaid-engine/internal/token"
	"github.com/campusvolt/prepaid-engine/internal/validator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TopupResult is returned to the presentation layer after a purchase.
type TopupResult struct {
	TokenCode string
	Display   string
	Kwh       float64
	Taxes     float64
	NewCursor float64
}

// TopupService runs the end-to-end purchase flow: price the payment against
// the meter's tier cursor, advance the meter atomically, mint a receipt
// token and record the topup in the same transaction.
type TopupService struct {
	store      store.Store
	events     Events
	validate   *validator.Validator
	routingKey string
	logger     *zap.Logger
}

// NewTopupService creates a new topup service
func NewTopupService(st store.Store, events Events, validate *validator.Validator, routingKey string, logger *zap.Logger) *TopupService {
	return &TopupService{
		store:      st,
		events:     events,
		validate:   validate,
		routingKey: routingKey,
		logger:     logger,
	}
}

// PerformTopup buys energy for amountPaid RWF. Pricing runs inside the
// per-meter critical section so the cursor observed is the cursor committed
// against. A purchase that raises the balance above zero reconnects the
// meter.
func (s *TopupService) PerformTopup(ctx context.Context, meterID uuid.UUID, amountPaid float64) (*TopupResult, error) {
	if err := s.validate.Amount(amountPaid); err != nil {
		return nil, err
	}

	var priced tariff.Result

	meter, topup, err := s.store.PurchaseTopup(ctx, meterID, func(m *db.Meter) (*db.Topup, error) {
		res, err := tariff.MoneyToKwh(amountPaid, m.MonthlyUnitsBought, m.Category)
		if err != nil {
			return nil, err
		}
		priced = res

		m.MonthlyUnitsBought = res.NewCursor
		m.Credit(res.Kwh)

		code, err := token.Generate()
		if err != nil {
			return nil, err
		}
		return &db.Topup{
			MeterID:    m.ID,
			AmountPaid: amountPaid,
			KwhBought:  res.Kwh,
			TokenCode:  code,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("topup failed: %w", err)
	}

	meterLogger := logging.WithMeterID(s.logger, meter.ID.String())
	meterLogger.Info("topup completed",
		zap.Float64("amount_paid", amountPaid),
		zap.Float64("kwh_bought", priced.Kwh),
		zap.Float64("new_cursor", meter.MonthlyUnitsBought),
		zap.Float64("balance_kwh", meter.BalanceKwh),
	)

	emitAlert(ctx, s.store, s.events, s.routingKey, meterLogger, meter,
		db.AlertTokenLoaded,
		kwhMessage("Top-up successful: purchased", priced.Kwh, meter.BalanceKwh))

	return &TopupResult{
		TokenCode: topup.TokenCode,
		Display:   token.Format(topup.TokenCode),
		Kwh:       priced.Kwh,
		Taxes:     priced.Taxes,
		NewCursor: meter.MonthlyUnitsBought,
	}, nil
}

// Estimate prices a payment against a meter's current cursor without
// touching state; used by the presentation layer's estimator so it never
// re-derives tariff math.
func (s *TopupService) Estimate(ctx context.Context, meterID uuid.UUID, amountPaid float64) (*tariff.Result, error) {
	if err := s.validate.Amount(amountPaid); err != nil {
		return nil, err
	}
	meter, err := s.store.GetMeter(ctx, meterID)
	if err != nil {
		return nil, err
	}
	res, err := tariff.MoneyToKwh(amountPaid, meter.MonthlyUnitsBought, meter.Category)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// BalanceValue reports the VAT-inclusive replacement cost of a meter's
// remaining balance, for display.
func (s *TopupService) BalanceValue(ctx context.Context, meterID uuid.UUID) (float64, error) {
	meter, err := s.store.GetMeter(ctx, meterID)
	if err != nil {
		return 0, err
	}
	return tariff.KwhToMoney(meter.BalanceKwh, meter.MonthlyUnitsBought, meter.Category)
}
