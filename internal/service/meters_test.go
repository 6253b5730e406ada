package service_test

import (
	"context"
	"testing"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/service"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/campusvolt/prepaid-engine/internal/tariff"
	"github.com/campusvolt/prepaid-engine/internal/validator"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultLowThreshold = 10.0

func newMeterService(s *store.Memory) *service.MeterService {
	return service.NewMeterService(s, validator.NewValidator(testMaxAmount), defaultLowThreshold, testLogger())
}

func TestRegister(t *testing.T) {
	s := store.NewMemory()
	svc := newMeterService(s)
	ctx := context.Background()

	m, err := svc.Register(ctx, service.Registration{
		MeterCode: "MTR-1001",
		UserID:    "user-7",
		Block:     "B",
		HouseUnit: "12",
		Category:  tariff.CategoryResidential,
	})
	require.NoError(t, err)
	assert.Equal(t, db.StatusOn, m.Status)
	assert.Zero(t, m.BalanceKwh)
	assert.Equal(t, defaultLowThreshold, m.LowThresholdKwh)

	got, err := svc.GetByCode(ctx, "MTR-1001")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestRegister_WithOpeningBalance(t *testing.T) {
	s := store.NewMemory()
	svc := newMeterService(s)
	ctx := context.Background()

	m, err := svc.Register(ctx, service.Registration{
		MeterCode:         "MTR-1002",
		UserID:            "user-7",
		Category:          tariff.CategoryCommercial,
		InitialBalanceKwh: 12,
		InitialBalanceRwf: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, 12.0, m.BalanceKwh)

	// The opening balance shows up in the transaction history.
	topups, err := s.ListTopups(ctx)
	require.NoError(t, err)
	require.Len(t, topups, 1)
	assert.Equal(t, m.ID, topups[0].MeterID)
	assert.Equal(t, 5000.0, topups[0].AmountPaid)
	assert.Equal(t, 12.0, topups[0].KwhBought)
}

func TestRegister_Invalid(t *testing.T) {
	s := store.NewMemory()
	svc := newMeterService(s)
	ctx := context.Background()

	_, err := svc.Register(ctx, service.Registration{MeterCode: "", Category: tariff.CategoryResidential})
	assert.Error(t, err)

	_, err = svc.Register(ctx, service.Registration{MeterCode: "MTR-X", Category: "industrial"})
	assert.ErrorIs(t, err, tariff.ErrInvalidCategory)

	_, err = svc.Register(ctx, service.Registration{MeterCode: "MTR-Y", Category: tariff.CategoryResidential, InitialBalanceKwh: -1})
	assert.ErrorIs(t, err, tariff.ErrInvalidAmount)

	reg := service.Registration{MeterCode: "MTR-Z", Category: tariff.CategoryResidential}
	_, err = svc.Register(ctx, reg)
	require.NoError(t, err)
	_, err = svc.Register(ctx, reg)
	assert.ErrorIs(t, err, store.ErrMeterExists)
}

func TestResetPeriod(t *testing.T) {
	s := store.NewMemory()
	svc := newMeterService(s)
	ctx := context.Background()
	m := seedMeter(t, s, meterSpec{balance: 30, cursor: 42.5})

	got, err := svc.ResetPeriod(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.MonthlyUnitsBought)
	// Balance and lifetime energy are untouched by a period reset.
	assert.Equal(t, 30.0, got.BalanceKwh)

	_, err = svc.ResetPeriod(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrMeterNotFound)
}

func TestTracking(t *testing.T) {
	s := store.NewMemory()
	svc := newMeterService(s)
	events := &eventRecorder{}
	topups := service.NewTopupService(s, events, validator.NewValidator(testMaxAmount), "meter.alert", testLogger())
	ctx := context.Background()

	m := seedMeter(t, s, meterSpec{balance: 0})
	_, err := topups.PerformTopup(ctx, m.ID, 1000)
	require.NoError(t, err)

	data, err := svc.Tracking(ctx)
	require.NoError(t, err)
	assert.Len(t, data.Meters, 1)
	assert.Len(t, data.Topups, 1)
	require.Len(t, data.Alerts, 1)
	assert.Equal(t, db.AlertTokenLoaded, data.Alerts[0].Type)
}

func TestRecentReadings_UnknownMeter(t *testing.T) {
	s := store.NewMemory()
	svc := newMeterService(s)

	_, err := svc.RecentReadings(context.Background(), uuid.New(), 5)
	assert.ErrorIs(t, err, store.ErrMeterNotFound)
}
