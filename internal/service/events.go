package service

import (
	"context"
	"fmt"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/mq"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"go.uber.org/zap"
)

// Events is the post-commit fan-out surface. *mq.Publisher implements it;
// tests substitute a recorder.
type Events interface {
	PublishMeterEvent(ctx context.Context, event mq.MeterEvent, routingKey string) error
}

// emitAlert appends an alert row and publishes the matching event. It runs
// after the owning transaction committed; failures are logged and swallowed.
func emitAlert(ctx context.Context, st store.Store, events Events, routingKey string, logger *zap.Logger, meter *db.Meter, alertType, message string) {
	alert := &db.Alert{
		MeterID: meter.ID,
		Type:    alertType,
		Message: message,
	}
	if err := st.InsertAlert(ctx, alert); err != nil {
		logger.Error("failed to append alert",
			zap.Error(err),
			zap.String("meter_id", meter.ID.String()),
			zap.String("type", alertType),
		)
	}

	if events == nil {
		return
	}
	event := mq.MeterEvent{
		MeterID:    meter.ID.String(),
		Type:       alertType,
		Message:    message,
		BalanceKwh: meter.BalanceKwh,
		OccurredAt: time.Now().Format(time.RFC3339),
	}
	if err := events.PublishMeterEvent(ctx, event, routingKey); err != nil {
		logger.Error("failed to publish meter event",
			zap.Error(err),
			zap.String("meter_id", event.MeterID),
			zap.String("type", event.Type),
		)
	}
}

// notifyAdmin appends an admin-console notification row, best-effort.
func notifyAdmin(ctx context.Context, st store.Store, logger *zap.Logger, notType, title, message, link string) {
	n := &db.Notification{
		Type:    notType,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := st.InsertNotification(ctx, n); err != nil {
		logger.Error("failed to append notification",
			zap.Error(err),
			zap.String("type", notType),
		)
	}
}

func kwhMessage(prefix string, kwh, balance float64) string {
	return fmt.Sprintf("%s %.2f kWh. New balance: %.2f kWh.", prefix, kwh, balance)
}
