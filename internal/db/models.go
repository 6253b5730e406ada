package db

import (
	"time"

	"github.com/google/uuid"
)

// Meter status values.
const (
	StatusOn  = "ON"
	StatusOff = "OFF"
)

// Token status values.
const (
	TokenUnused = "unused"
	TokenUsed   = "used"
)

// Alert types.
const (
	AlertLowBalance  = "LOW_BALANCE"
	AlertPowerOff    = "POWER_OFF"
	AlertTokenLoaded = "TOKEN_LOADED"
)

// Admin notification types.
const (
	NotificationNewMeter = "new_meter"
	NotificationAlert    = "alert"
)

// Meter is the per-customer prepaid meter record. Version backs the
// optimistic CAS used by the Postgres store; the in-memory store ignores it.
type Meter struct {
	ID                 uuid.UUID
	MeterCode          string
	UserID             string
	Block              string
	HouseUnit          string
	Category           string
	BalanceKwh         float64
	EnergyKwh          float64
	MonthlyUnitsBought float64
	Status             string
	LowThresholdKwh    float64
	LowAlerted         bool
	Version            int64
	CreatedAt          time.Time
}

// Credit adds purchased energy and reconnects the meter if the resulting
// balance is strictly positive. Clearing LowAlerted re-arms the low-balance
// alert for the next ON phase.
func (m *Meter) Credit(kwh float64) {
	m.BalanceKwh += kwh
	if m.BalanceKwh > 0 {
		m.Status = StatusOn
	}
	if m.BalanceKwh > m.LowThresholdKwh {
		m.LowAlerted = false
	}
}

// Debit consumes energy, clamping the balance at zero, and disconnects the
// meter when the balance runs out. It reports whether this debit crossed the
// low threshold (alert due) and whether it caused a disconnect.
func (m *Meter) Debit(kwh float64) (lowCrossed, disconnected bool) {
	newBalance := m.BalanceKwh - kwh
	if newBalance < 0 {
		newBalance = 0
	}
	m.EnergyKwh += kwh
	m.BalanceKwh = newBalance

	if m.Status == StatusOn && newBalance <= m.LowThresholdKwh && newBalance > 0 && !m.LowAlerted {
		m.LowAlerted = true
		lowCrossed = true
	}
	if m.Status == StatusOn && newBalance <= 0 {
		m.Status = StatusOff
		disconnected = true
	}
	return lowCrossed, disconnected
}

// Topup is an immutable purchase record. TokenCode is the 20-digit receipt
// code handed to the buyer; it is unique across all topups.
type Topup struct {
	ID         uuid.UUID
	MeterID    uuid.UUID
	AmountPaid float64
	KwhBought  float64
	TokenCode  string
	CreatedAt  time.Time
}

// Token is a pre-priced bearer credential redeemable exactly once.
// MeterID and UsedAt stay nil until redemption.
type Token struct {
	ID        uuid.UUID
	TokenCode string
	AmountKwh float64
	Status    string
	MeterID   *uuid.UUID
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Reading is one synthesized telemetry sample, append-only.
type Reading struct {
	ID         uuid.UUID
	MeterID    uuid.UUID
	Voltage    float64
	Current    float64
	Power      float64
	EnergyKwh  float64
	BalanceKwh float64
	CreatedAt  time.Time
}

// Alert is a typed customer-facing event, append-only.
type Alert struct {
	ID         uuid.UUID
	MeterID    uuid.UUID
	Type       string
	Message    string
	IsResolved bool
	CreatedAt  time.Time
}

// Notification is an admin-console event, append-only.
type Notification struct {
	ID        uuid.UUID
	Type      string
	Title     string
	Message   string
	Link      string
	CreatedAt time.Time
}
