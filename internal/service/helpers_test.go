package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/mq"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMaxAmount = 1_000_000

// eventRecorder captures published meter events in place of RabbitMQ.
type eventRecorder struct {
	mu     sync.Mutex
	events []mq.MeterEvent
}

func (r *eventRecorder) PublishMeterEvent(_ context.Context, event mq.MeterEvent, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) byType(eventType string) []mq.MeterEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mq.MeterEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

type meterSpec struct {
	category  string
	balance   float64
	cursor    float64
	threshold float64
	status    string
}

func seedMeter(t *testing.T, s *store.Memory, spec meterSpec) *db.Meter {
	t.Helper()
	if spec.category == "" {
		spec.category = "residential"
	}
	if spec.status == "" {
		spec.status = db.StatusOn
	}
	if spec.threshold == 0 {
		spec.threshold = 10
	}
	m := &db.Meter{
		MeterCode:          "MTR-" + uuid.NewString()[:8],
		UserID:             "user-1",
		Category:           spec.category,
		BalanceKwh:         spec.balance,
		MonthlyUnitsBought: spec.cursor,
		Status:             spec.status,
		LowThresholdKwh:    spec.threshold,
	}
	require.NoError(t, s.CreateMeter(context.Background(), m))
	return m
}

func alertsOfType(t *testing.T, s *store.Memory, alertType string) []db.Alert {
	t.Helper()
	alerts, err := s.ListAlerts(context.Background())
	require.NoError(t, err)
	var out []db.Alert
	for _, a := range alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}
