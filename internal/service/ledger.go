package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/logging"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/campusvolt/prepaid-engine/internal/token"
	"github.com/campusvolt/prepaid-engine/internal/validator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RedeemResult reports a successful token redemption.
type RedeemResult struct {
	AmountKwh  float64
	NewBalance float64
}

// LedgerService mints pre-priced bearer tokens and redeems them with
// one-shot semantics. Authorization of CreateToken callers is the auth
// collaborator's job; this service assumes the caller is an operator.
type LedgerService struct {
	store      store.Store
	events     Events
	validate   *validator.Validator
	routingKey string
	logger     *zap.Logger
}

// NewLedgerService creates a new token ledger service
func NewLedgerService(st store.Store, events Events, validate *validator.Validator, routingKey string, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:      st,
		events:     events,
		validate:   validate,
		routingKey: routingKey,
		logger:     logger,
	}
}

// CreateToken mints an unused token worth amountKwh. Tokens are pre-priced
// energy; no tariff math applies. Code collisions are retried with a fresh
// mint up to the store's attempt budget.
func (s *LedgerService) CreateToken(ctx context.Context, amountKwh float64) (*db.Token, error) {
	if err := s.validate.Energy(amountKwh); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < store.MaxMintAttempts; attempt++ {
		code, err := token.Generate()
		if err != nil {
			return nil, err
		}
		t := &db.Token{
			TokenCode: code,
			AmountKwh: amountKwh,
			Status:    db.TokenUnused,
		}
		if err := s.store.CreateToken(ctx, t); err != nil {
			if errors.Is(err, store.ErrDuplicateCode) {
				continue
			}
			return nil, fmt.Errorf("failed to mint token: %w", err)
		}
		s.logger.Info("token minted",
			zap.Float64("amount_kwh", amountKwh),
		)
		return t, nil
	}
	return nil, fmt.Errorf("failed to mint token: %w", store.ErrDuplicateCode)
}

// Redeem loads a token onto a meter. The unused -> used flip and the
// balance credit commit together; a replayed or concurrent redemption
// observes ErrTokenAlreadyUsed and leaves the meter untouched.
func (s *LedgerService) Redeem(ctx context.Context, code string, meterID uuid.UUID) (*RedeemResult, error) {
	normalized, err := s.validate.TokenCode(code)
	if err != nil {
		return nil, err
	}

	t, meter, err := s.store.RedeemToken(ctx, normalized, meterID, time.Now())
	if err != nil {
		return nil, err
	}

	meterLogger := logging.WithMeterID(s.logger, meter.ID.String())
	meterLogger.Info("token redeemed",
		zap.Float64("amount_kwh", t.AmountKwh),
		zap.Float64("balance_kwh", meter.BalanceKwh),
		zap.String("status", meter.Status),
	)

	emitAlert(ctx, s.store, s.events, s.routingKey, meterLogger, meter,
		db.AlertTokenLoaded,
		kwhMessage("Successfully loaded", t.AmountKwh, meter.BalanceKwh))

	return &RedeemResult{
		AmountKwh:  t.AmountKwh,
		NewBalance: meter.BalanceKwh,
	}, nil
}
