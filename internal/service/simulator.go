package service

import (
	"context"
	"fmt"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/logging"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/campusvolt/prepaid-engine/internal/telemetry"
	"go.uber.org/zap"
)

// Simulator advances every active meter by one consumption step per tick:
// debit the balance, append a synthetic reading, and drive the ON/OFF state
// machine with its alerts.
type Simulator struct {
	store       store.Store
	events      Events
	gen         *telemetry.Generator
	consumption float64
	interval    time.Duration
	routingKey  string
	logger      *zap.Logger
}

// NewSimulator creates a new consumption simulator
func NewSimulator(st store.Store, events Events, gen *telemetry.Generator, consumption float64, interval time.Duration, routingKey string, logger *zap.Logger) *Simulator {
	return &Simulator{
		store:       st,
		events:      events,
		gen:         gen,
		consumption: consumption,
		interval:    interval,
		routingKey:  routingKey,
		logger:      logger,
	}
}

// Run ticks at the configured interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("simulator started",
		zap.Duration("interval", s.interval),
		zap.Float64("consumption_kwh", s.consumption),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one simulation step over a snapshot of all meters. Per-meter
// failures are logged and do not stop the sweep.
func (s *Simulator) Tick(ctx context.Context) error {
	meters, err := s.store.ListMeters(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot meters: %w", err)
	}

	for i := range meters {
		m := &meters[i]
		if m.Status == db.StatusOff && m.BalanceKwh <= 0 {
			continue
		}
		if err := s.tickMeter(ctx, m); err != nil {
			logging.WithMeterID(s.logger, m.ID.String()).Error("meter tick failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Simulator) tickMeter(ctx context.Context, snapshot *db.Meter) error {
	var lowCrossed, disconnected bool

	meter, err := s.store.ApplyMeter(ctx, snapshot.ID, func(m *db.Meter) error {
		lowCrossed, disconnected = m.Debit(s.consumption)
		return nil
	})
	if err != nil {
		return err
	}

	sample := s.gen.Draw()
	reading := &db.Reading{
		MeterID:    meter.ID,
		Voltage:    sample.Voltage,
		Current:    sample.Current,
		Power:      sample.Power,
		EnergyKwh:  meter.EnergyKwh,
		BalanceKwh: meter.BalanceKwh,
	}
	if err := s.store.InsertReading(ctx, reading); err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}

	meterLogger := logging.WithMeterID(s.logger, meter.ID.String())
	meterLogger.Debug("tick applied",
		zap.Float64("balance_kwh", meter.BalanceKwh),
		zap.Float64("power_kw", sample.Power),
		zap.String("status", meter.Status),
	)

	if lowCrossed {
		emitAlert(ctx, s.store, s.events, s.routingKey, meterLogger, meter,
			db.AlertLowBalance,
			fmt.Sprintf("Your balance is low (%.2f kWh remaining). Please top up soon.", meter.BalanceKwh))
	}
	if disconnected {
		emitAlert(ctx, s.store, s.events, s.routingKey, meterLogger, meter,
			db.AlertPowerOff,
			"Your balance has run out. Power has been disconnected.")
	}
	return nil
}
