package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/service"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/campusvolt/prepaid-engine/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommandService(s *store.Memory) *service.CommandService {
	meters := service.NewMeterService(s, validator.NewValidator(testMaxAmount), defaultLowThreshold, testLogger())
	return service.NewCommandService(meters, testLogger())
}

func TestProcessMessage_ResetPeriod(t *testing.T) {
	s := store.NewMemory()
	svc := newCommandService(s)
	ctx := context.Background()
	m := seedMeter(t, s, meterSpec{balance: 20, cursor: 35})

	body := fmt.Sprintf(`{"op":"reset_period","meter_id":%q,"requested_at":%q}`,
		m.ID.String(), time.Now().Format(time.RFC3339))

	require.NoError(t, svc.ProcessMessage(ctx, []byte(body)))

	got, err := s.GetMeter(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.MonthlyUnitsBought)
	assert.Equal(t, 20.0, got.BalanceKwh)
}

func TestProcessMessage_Rejections(t *testing.T) {
	s := store.NewMemory()
	svc := newCommandService(s)
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"op":`},
		{"unknown op", `{"op":"detonate","meter_id":"x"}`},
		{"bad meter id", `{"op":"reset_period","meter_id":"not-a-uuid"}`},
		{"missing meter", `{"op":"reset_period","meter_id":"00000000-0000-0000-0000-000000000001"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, svc.ProcessMessage(ctx, []byte(tt.body)))
		})
	}
}
