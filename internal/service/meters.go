package service

import (
	"context"
	"fmt"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/logging"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/campusvolt/prepaid-engine/internal/token"
	"github.com/campusvolt/prepaid-engine/internal/validator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registration is the input to meter registration.
type Registration struct {
	MeterCode         string
	UserID            string
	Block             string
	HouseUnit         string
	Category          string
	InitialBalanceKwh float64
	InitialBalanceRwf float64
}

// TrackingData is the ops-console projection: everything, newest first.
type TrackingData struct {
	Meters []db.Meter
	Topups []db.Topup
	Alerts []db.Alert
}

// MeterService owns meter lifecycle operations outside the purchase path:
// registration, the externally-triggered billing period reset, and read
// projections for dashboards.
type MeterService struct {
	store        store.Store
	validate     *validator.Validator
	lowThreshold float64
	logger       *zap.Logger
}

// NewMeterService creates a new meter service
func NewMeterService(st store.Store, validate *validator.Validator, lowThreshold float64, logger *zap.Logger) *MeterService {
	return &MeterService{
		store:        st,
		validate:     validate,
		lowThreshold: lowThreshold,
		logger:       logger,
	}
}

// Register creates a meter. An optional opening balance is recorded as a
// topup so the transaction history starts consistent, and the ops console
// is notified either way.
func (s *MeterService) Register(ctx context.Context, reg Registration) (*db.Meter, error) {
	if reg.MeterCode == "" {
		return nil, fmt.Errorf("meter code is required")
	}
	if err := s.validate.Category(reg.Category); err != nil {
		return nil, err
	}
	if err := s.validate.Energy(reg.InitialBalanceKwh); err != nil {
		return nil, err
	}
	if err := s.validate.Amount(reg.InitialBalanceRwf); err != nil {
		return nil, err
	}

	meter := &db.Meter{
		MeterCode:       reg.MeterCode,
		UserID:          reg.UserID,
		Block:           reg.Block,
		HouseUnit:       reg.HouseUnit,
		Category:        reg.Category,
		BalanceKwh:      reg.InitialBalanceKwh,
		Status:          db.StatusOn,
		LowThresholdKwh: s.lowThreshold,
	}
	if err := s.store.CreateMeter(ctx, meter); err != nil {
		return nil, err
	}

	meterLogger := logging.WithMeterID(s.logger, meter.ID.String())
	meterLogger.Info("meter registered",
		zap.String("meter_code", meter.MeterCode),
		zap.String("category", meter.Category),
		zap.Float64("balance_kwh", meter.BalanceKwh),
	)

	notice := fmt.Sprintf("Meter %s registered", meter.MeterCode)
	if reg.InitialBalanceRwf > 0 {
		if err := s.recordOpeningTopup(ctx, meter, reg); err != nil {
			meterLogger.Error("failed to record opening topup", zap.Error(err))
		} else {
			notice = fmt.Sprintf("Meter %s registered with initial balance of %.0f RWF", meter.MeterCode, reg.InitialBalanceRwf)
		}
	}
	notifyAdmin(ctx, s.store, meterLogger, db.NotificationNewMeter, "New Meter Registered", notice, "/admin/insights")

	return meter, nil
}

func (s *MeterService) recordOpeningTopup(ctx context.Context, meter *db.Meter, reg Registration) error {
	// The balance was already set at creation; this only writes the
	// transaction record, so the mutate leaves the meter alone.
	_, _, err := s.store.PurchaseTopup(ctx, meter.ID, func(m *db.Meter) (*db.Topup, error) {
		code, err := token.Generate()
		if err != nil {
			return nil, err
		}
		return &db.Topup{
			MeterID:    m.ID,
			AmountPaid: reg.InitialBalanceRwf,
			KwhBought:  reg.InitialBalanceKwh,
			TokenCode:  code,
		}, nil
	})
	return err
}

// ResetPeriod zeroes the monthly tier cursor. Period boundaries are owned
// by the external billing scheduler; the engine only executes the trigger.
func (s *MeterService) ResetPeriod(ctx context.Context, meterID uuid.UUID) (*db.Meter, error) {
	meter, err := s.store.ApplyMeter(ctx, meterID, func(m *db.Meter) error {
		m.MonthlyUnitsBought = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.WithMeterID(s.logger, meter.ID.String()).Info("billing period reset")
	return meter, nil
}

// Get loads a meter snapshot by id.
func (s *MeterService) Get(ctx context.Context, meterID uuid.UUID) (*db.Meter, error) {
	return s.store.GetMeter(ctx, meterID)
}

// GetByCode loads a meter snapshot by its human code.
func (s *MeterService) GetByCode(ctx context.Context, code string) (*db.Meter, error) {
	return s.store.GetMeterByCode(ctx, code)
}

// Tracking returns the admin tracking projection.
func (s *MeterService) Tracking(ctx context.Context) (*TrackingData, error) {
	meters, err := s.store.ListMeters(ctx)
	if err != nil {
		return nil, err
	}
	topups, err := s.store.ListTopups(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	return &TrackingData{Meters: meters, Topups: topups, Alerts: alerts}, nil
}

// RecentReadings returns the latest telemetry for one meter's chart widget.
func (s *MeterService) RecentReadings(ctx context.Context, meterID uuid.UUID, limit int) ([]db.Reading, error) {
	if _, err := s.store.GetMeter(ctx, meterID); err != nil {
		return nil, err
	}
	return s.store.RecentReadings(ctx, meterID, limit)
}
