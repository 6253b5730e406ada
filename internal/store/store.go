// Package store defines the persistence contract shared by the Postgres and
// in-memory backends. Every read-modify-write on a meter goes through
// ApplyMeter, PurchaseTopup or RedeemToken, each of which serializes per
// meter; everything else is append-only or read-only.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/google/uuid"
)

var (
	ErrMeterNotFound    = errors.New("meter not found")
	ErrMeterExists      = errors.New("meter code already registered")
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenAlreadyUsed = errors.New("token already used")

	// ErrConflict is surfaced after the bounded optimistic-retry budget on a
	// meter read-modify-write is exhausted.
	ErrConflict = errors.New("concurrent meter update conflict")

	// ErrDuplicateCode is a token_code uniqueness violation; minting paths
	// retry with a fresh code.
	ErrDuplicateCode = errors.New("token code already exists")

	ErrStoreUnavailable = errors.New("store unavailable")
)

// MaxApplyAttempts bounds optimistic retries on a meter mutation.
const MaxApplyAttempts = 3

// MaxMintAttempts bounds re-mints after a token code collision.
const MaxMintAttempts = 5

// Store is the persistence surface consumed by the services.
type Store interface {
	CreateMeter(ctx context.Context, m *db.Meter) error
	GetMeter(ctx context.Context, id uuid.UUID) (*db.Meter, error)
	GetMeterByCode(ctx context.Context, code string) (*db.Meter, error)
	ListMeters(ctx context.Context) ([]db.Meter, error)

	// ApplyMeter runs mutate against the current meter row under per-meter
	// serialization and persists the result. mutate returning an error
	// aborts with no state change.
	ApplyMeter(ctx context.Context, id uuid.UUID, mutate func(*db.Meter) error) (*db.Meter, error)

	// PurchaseTopup atomically applies a meter mutation and records the
	// topup it returns. On a token code collision the whole attempt is
	// rolled back and mutate is re-run (which re-mints), up to
	// MaxMintAttempts.
	PurchaseTopup(ctx context.Context, id uuid.UUID, mutate func(*db.Meter) (*db.Topup, error)) (*db.Meter, *db.Topup, error)

	CreateToken(ctx context.Context, t *db.Token) error
	GetToken(ctx context.Context, code string) (*db.Token, error)

	// RedeemToken flips an unused token to used and credits the meter in
	// one atomic step. Exactly one of two concurrent redemptions succeeds;
	// the loser sees ErrTokenAlreadyUsed.
	RedeemToken(ctx context.Context, code string, meterID uuid.UUID, at time.Time) (*db.Token, *db.Meter, error)

	InsertReading(ctx context.Context, r *db.Reading) error
	InsertAlert(ctx context.Context, a *db.Alert) error
	InsertNotification(ctx context.Context, n *db.Notification) error

	ListTopups(ctx context.Context) ([]db.Topup, error)
	ListAlerts(ctx context.Context) ([]db.Alert, error)
	RecentReadings(ctx context.Context, meterID uuid.UUID, limit int) ([]db.Reading, error)
}
